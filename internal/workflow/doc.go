// Package workflow advances content items through the five pipeline stages.
//
// The Manager runs transcription, vectorization, summarization, flashcard
// generation and quiz generation strictly in order, persisting every stage
// transition and progress update to the content store and emitting progress
// events through the notification sink. A terminal provider quota pauses the
// item with a recovery estimate instead of failing it; quiz generation is a
// soft stage whose failure still leaves the item completed.
//
// Process restarts an item from scratch, Resume continues from the first
// incomplete stage (or an explicit stage whose predecessors are complete), and
// Start runs a background poll loop that picks up pending work, reclaims items
// interrupted by a crash and resumes paused items once their quota recovers.
package workflow
