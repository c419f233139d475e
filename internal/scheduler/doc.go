// Package scheduler triggers registered jobs on cron or interval schedules
// and executes them on a small worker pool with per-run timeout and retry.
//
// Triggering uses robfig/cron; execution is in-process. Overlap policy is
// skip-if-running: a trigger that fires while the same job is still running
// is dropped, matching classic cron semantics for long jobs.
package scheduler
