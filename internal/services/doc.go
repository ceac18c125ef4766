// Package services defines shared utilities consumed by the ingestion
// pipeline stages and the asset service.
//
// Key responsibilities:
//   - Context helpers that stamp pending-asset IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - The structured error taxonomy (soft vs hard markers) plus the Wrap
//     helper that keeps failure classification uniform across the pipeline.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays consistent.
package services
