// Package deletion removes study material across the vector index, the blob
// store and the primary database.
//
// A permanent delete runs as a checkpointed saga. Vectors go first because a
// failure there leaves the primary store untouched and the delete can simply
// be retried. The primary cascade runs last in a single transaction; when it
// fails after the vectors are gone the saga is marked inconsistent and an
// operator alert is raised. Reconcile forward-completes stalled sagas from
// their last checkpoint.
//
// Soft delete flags the item and tags its blob. Restore undoes that within
// the recovery window, and Sweep permanently deletes whatever outlived it.
package deletion
