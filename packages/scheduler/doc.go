// Package scheduler defers and repeats executions.
//
// Three kinds of task are supported:
//
//   - once: run a single case or a module at a fixed time, then forget the task
//   - recurring: run a case, a module or every case each N minutes, the first
//     run happening one full interval after registration
//   - cron: run on a standard five field cron expression
//
// Live tasks are tracked in a Registry. MemoryRegistry keeps them in process
// only; RedisRegistry additionally mirrors task descriptors to a Redis hash so
// that Scheduler.Restore can re-register them after a restart.
package scheduler
