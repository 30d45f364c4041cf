// Package broadcast sends one text message to many users, sequentially.
//
// The engine walks the recipient list in stored order with a fixed pause
// between sends to stay under platform rate limits. A failed send is
// recorded and never aborts the pass: the report tallies how many sends
// succeeded and how many did not.
//
// The Service wraps the engine in a bounded job queue with a single worker,
// so at most one broadcast is in flight at a time and a requester gets an
// immediate acknowledgment plus a summary reply once the pass finishes.
package broadcast
