// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Dispatcher wraps
// any Service so callers never block on delivery: events are queued on a
// bounded buffer and dropped, with a warning, when the buffer is full.
//
// All pipeline code depends only on the Service interface.
package notifications
