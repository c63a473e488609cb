// Package scoring grades quiz attempts and recommends the next difficulty.
//
// Answers are compared after case folding, punctuation stripping and
// whitespace collapsing. List-valued answers require every expected value
// (a superset match). Essay questions are recorded but never auto-graded as
// correct. Question tags become per-topic correctness buckets that classify
// strong and weak topics.
package scoring
