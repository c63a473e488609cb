// Package services defines shared utilities consumed by the pipeline stage
// handlers, the deletion protocol and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp content IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries a
//     classifiable kind (validation, quota, consistency, ...).
//   - Details, which flattens an error into the fields the workflow manager
//     logs on stage failure.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
