// Package generation routes generative requests to configured backends and
// keeps them running when individual backends misbehave.
//
// A Router maps (task, complexity, streaming) onto a generator id and builds the
// fallback chain. The Invoker walks the chain with per-generator rate limits,
// capped exponential backoff for transient failures, immediate advance for
// unavailable models and an immediate return for terminal quota exhaustion.
// Backends convert provider failures into *ProviderError exactly once; code in
// this package and above inspects errors only through errors.As and Kind.
//
// GenerateRecords layers the structured output recovery parser, record
// validation and the completeness check on top of an invocation. Coalescers
// collapse concurrent identical requests into one generation.
package generation
