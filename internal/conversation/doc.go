// Package conversation implements two-party messaging on top of a store.Store.
//
// # Overview
//
// Every pair of users shares exactly one message archive (a set of encoded
// messages) and one live channel (a pub/sub channel). Neither is allocated by
// a central service: whichever participant touches the pair first creates the
// identifiers, and the Resolver guarantees both sides arrive at the same ones.
//
// # Resolution
//
// Each user owns a pair record, the hash "hash:<userKey>". For a partner with
// key K it holds the field "messages:K" (archive key) and "chat:K" (channel
// name). Resolve checks the caller's record, then the partner's (copying the
// value back), and only on first contact composes a new identifier:
//
//	messages:user:Advanced:alice:user:Simple:bob
//	chat:user:Advanced:alice:user:Simple:bob
//
// The composed string depends on who resolved first. When both sides make
// first contact at the same moment, a SETNX on the pair's claim key picks one
// value and the other side adopts it, so the archive can never fork.
//
// # Components
//
//   - Resolver: pair + kind to canonical identifier
//   - Archive: Append and ReadAll on the pair's archive set
//   - ChannelBus: Publish, Subscribe and Listen on the pair's channel
//   - Messenger: Send (archive then publish), History and Listen
//
// # Errors
//
// Validation, not-found and store failures are returned as apperr errors; use
// errors.Is with apperr.ErrValidation, apperr.ErrNotFound or apperr.ErrStore.
package conversation
