// Package daemon coordinates the long-running depot process.
//
// It wires the three stores, the library scanner and watcher, the
// download pool, the catalog refresher, and the upstream sync scheduler
// into a single lifecycle with flock-based locking to prevent multiple
// instances, and serves the HTTP API and the published shop index.
//
// Keep orchestration logic here: subsystem behavior lives in the
// subsystem packages while the daemon focuses on startup, shutdown, and
// request routing.
package daemon
