// Package main hosts the studyforge CLI entrypoint and command graph.
//
// Most commands build the application graph in-process against the same
// content database the daemon uses, so ingest, review, quiz, Q&A and delete
// operations work whether or not studyforged is running. The status command
// queries the daemon's ops API instead.
package main
