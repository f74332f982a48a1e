// Package model defines the records the hitrun engine reads and writes.
//
// Environments, modules, variables and test cases are inputs owned by the
// storage collaborator and treated as read-only during a run. Executions,
// execution details and execution logs are written by the runner.
//
// Assertion and extractor configuration is modeled as a closed set of typed
// specs. Decoding never drops unknown assertion types so the evaluator can
// report them, but Validate rejects them at the catalog boundary.
package model
