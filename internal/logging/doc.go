// Package logging wires log/slog with the handlers the daemon and CLI share:
// a compact console handler for terminals, JSON for files and collectors, and
// helpers that stamp standardized fields (component, asset, stage,
// correlation id) from context. ProgressSampler rate-limits noisy progress
// streams from compression and transfers.
package logging
