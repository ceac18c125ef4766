// Package preflight provides readiness checks for the directories,
// binaries, and the asset service that Loft depends on.
//
// These checks run in two contexts:
//   - The CLI runs RunAll before starting an ingest batch. A failed
//     required check stops the batch before any file is touched.
//   - The "loft status" command uses individual check functions to
//     display environment health.
//
// Encoder binaries are reported but never block: the compressor falls
// back to uploading the original when ffmpeg is absent.
package preflight
