// Package qa answers free-form questions about a content item.
//
// Questions are embedded and matched against the item's vector chunks. The
// best chunks ground a prompt that is streamed through the realtime
// generator, and the exchange is appended to a chat session.
package qa
