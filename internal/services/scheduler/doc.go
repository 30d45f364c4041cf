// Package scheduler runs deferred and recurring jobs.
//
// Two job shapes exist: Once fires a job a fixed delay from now (the
// "/schedule" command), Cron fires on a standard 5-field cron spec (nightly
// maintenance). Fired jobs run independently of the event loop with a
// per-job timeout and panic isolation; every run lands in a bounded
// history ring so recent outcomes stay inspectable.
package scheduler
