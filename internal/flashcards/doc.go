// Package flashcards implements the flashcard generation stage. Cards are
// produced by the generation resilience layer from the stored summary and a
// transcript excerpt, recovered from partially malformed output, validated
// record by record, and replaced in the primary store as one set.
package flashcards
