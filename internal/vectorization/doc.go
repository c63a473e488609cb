// Package vectorization implements the second pipeline stage: the transcript
// is split into overlapping chunks, embedded in batches and written to the
// vector store under the content id. Earlier vectors for the item are removed
// first so a rerun never leaves stale chunks behind.
package vectorization
