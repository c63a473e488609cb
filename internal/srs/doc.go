// Package srs schedules flashcard reviews with the SM-2 algorithm.
//
// Schedule is a pure function over the card's spaced repetition state.
// Service applies it to stored cards, keeps per-card review statistics and
// appends every review to the immutable review log.
package srs
