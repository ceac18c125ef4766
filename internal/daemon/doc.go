// Package daemon coordinates the long-running loftd process.
//
// It wires configuration, the asset catalog, blob storage, metrics, and
// the HTTP API into a single lifecycle with flock-based locking to
// prevent multiple instances, and runs the periodic sweep that reaps
// expired chunked upload sessions.
//
// Keep orchestration logic here: request handling lives in the server
// package while the daemon focuses on startup, shutdown, and the
// background timers.
package daemon
