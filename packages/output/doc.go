// Package output renders finished executions.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML format for CI integration
//
// Every formatter renders a Report, which bundles an execution with its
// details, logs, case names and latency statistics.
package output
