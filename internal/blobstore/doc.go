// Package blobstore retains the source documents of content items.
//
// Two backends implement Store: Local keeps objects under a directory with a
// JSON sidecar holding tags, and GCS keeps them in a Cloud Storage bucket where
// tags become object metadata. Delete of a missing object succeeds so the
// deletion saga can replay the blob phase.
package blobstore
