// Package cmd implements the hitrun CLI commands using Cobra.
//
// Available commands:
//   - load: Validate YAML catalogs and write them into the store
//   - run: Execute a case, a module, every case or a batch of cases
//   - schedule: Run tasks from a watched task file until interrupted
//   - executions: List recent executions or show one of them
//   - validate: Check configuration, catalogs and task files
//   - version: Show hitrun version information
//
// Settings come from hitrun.yaml (or .hitrun.yaml, hitrun.config.json), a
// .env file and HITRUN_* environment variables, with flags applied last.
package cmd
