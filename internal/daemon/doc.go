// Package daemon coordinates the long-running Reelsmith process.
//
// It wires configuration, the record store, the pipeline engines, and the
// webhook dispatcher into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon owns the HTTP API surface: project
// and approval operations, completion-callback endpoints for the external
// generation workflows, a websocket event stream, and cron-scheduled log
// retention.
//
// Keep orchestration here: pipeline semantics live in their own packages while
// the daemon focuses on startup, shutdown, and transport.
package daemon
