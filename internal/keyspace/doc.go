// Package keyspace derives every store identifier the messenger uses.
//
// A user key is "user:Role:name". Each user has a pair-record hash at
// "hash:<userKey>" whose fields ("messages:<otherKey>", "chat:<otherKey>")
// hold the canonical archive key and channel name shared with that partner.
// A canonical identifier is "<kind>:<selfKey>:<otherKey>" in the order of the
// side that made first contact. Prefixes come from configuration and may not
// contain ':'.
package keyspace
