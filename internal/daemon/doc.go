// Package daemon coordinates the long-running studyforge process.
//
// It wires the content store, the workflow manager, and the deletion service
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon serves the ops API (content listing, ingestion,
// resume, deletes, and maintenance triggers) plus Prometheus metrics, and runs
// the periodic recovery-window sweep and saga reconciliation.
//
// Keep orchestration logic here: individual pipeline steps live in their own
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
