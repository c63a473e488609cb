// Package quizzes generates versioned quizzes per difficulty.
//
// Service.Generate is the on-demand entry point. Concurrent requests for the
// same content, requester and difficulty share one generator call through a
// generation.Coalescer. Stage wraps the service as the soft quiz generation
// stage of the pipeline, trying every difficulty with its own retry budget.
package quizzes
