// Package summarization implements the third pipeline stage. It asks the
// routed generator for a study summary of the transcript and, through the
// lightweight route, for a list of key concepts. An empty concept list is
// a valid outcome; a missing summary is not.
package summarization
