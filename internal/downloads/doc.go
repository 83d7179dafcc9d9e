// Package downloads persists the download queue and runs the worker
// pool that drains it.
//
// Each item moves through a small state machine: queued, downloading,
// paused, and the terminal states completed, failed, and cancelled.
// Every transition is a guarded UPDATE keyed on the current status, so
// concurrent workers and API calls cannot resurrect a finished row.
// Paused items keep their partial file in the staging directory and
// re-enter the queue when a resume is requested.
package downloads
