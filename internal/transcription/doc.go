// Package transcription implements the first pipeline stage: it loads the
// source file of a content item (from the blob store, or the local source path
// when no blob was retained), parses it into a normalized transcript and
// persists it.
package transcription
