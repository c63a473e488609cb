// Package recovery reconstructs arrays of JSON records from generator output
// that may be fenced, prefixed with prose, truncated or otherwise malformed.
//
// Parse tries, in order: a direct parse, a balanced parse that closes open
// strings and brackets, and a salvage scan that keeps only records that were
// fully closed before the input ended. CheckCompleteness rejects recoveries
// that fall below half of what was requested.
package recovery
