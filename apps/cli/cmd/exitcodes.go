package cmd

// Exit codes for the hitrun CLI
const (
	// ExitSuccess indicates the execution passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more cases failed
	ExitTestFailure = 1

	// ExitParseError indicates an invalid catalog or task file
	ExitParseError = 2

	// ExitConfigError indicates a configuration or store error
	ExitConfigError = 3

	// ExitNetworkError indicates every failed case failed in transport
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage or an unknown target
	ExitUsageError = 64
)
