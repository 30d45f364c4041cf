// Package dispatch routes inbound platform updates to handlers.
//
// Updates are consumed from a channel by a single goroutine and processed
// to completion one at a time, so handlers observe events in arrival order
// and need no locking of their own. Text starting with "/" is resolved
// against a static command table; unknown commands are ignored. Plain
// messages flow through an ordered chain of passive handlers in which
// every handler runs regardless of what the previous ones did. Member-join
// updates go to the membership handlers.
//
// Every event reads the settings registry fresh, so a toggle flipped by
// one command is visible to the very next message.
package dispatch
