// Package content persists study material and its derived artifacts in SQLite.
//
// The Store owns the content aggregate (status, the five-stage record, pause
// info, soft-delete flag) and every dependent table: transcripts, summaries
// and concepts, flashcards and their append-only review log, versioned
// quizzes and attempts, Q&A sessions, and deletion sagas. DeleteCascade
// removes an item and all dependents inside a single transaction.
//
// The stage record is serialized as JSON with five fixed keys; consumers
// outside the daemon depend on that shape, so treat StageRecord as frozen.
// Schema changes bump schemaVersion in schema.go.
package content
