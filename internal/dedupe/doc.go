// Package dedupe filters a chat session's own messages out of its live feed.
//
// A session that both publishes to and listens on a pair's channel receives
// its own sends back. Before publishing, the session calls Expect with the
// encoded payload; the listener calls Suppress for every payload it receives
// and skips those that return true. Expectations lapse after a TTL so a lost
// echo cannot hide a later identical message forever.
package dedupe
