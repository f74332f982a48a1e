// Package runner executes stored test cases against an environment and
// records the outcome as an execution.
//
// It provides functionality for:
//   - Running a single case, a module, every case, or an explicit batch
//   - Building requests from environment defaults, module variables and
//     values extracted from earlier responses in the same execution
//   - Evaluating assertions and writing per-case details and logs
//   - Tracking progress and a passed/failed tally on the execution
//   - Cancelling an in-flight run through its handle
//
// Cases within one execution always run sequentially, in order, so that
// values captured by one case are visible to the cases after it.
package runner
