// Package session implements Wren's authentication session lifecycle:
// registration, login, refresh-token rotation, and logout.
//
// The model is a two-token pair: a short-lived signed access token and a
// long-lived opaque refresh token. Refresh tokens are single-use; each
// redemption overwrites the session row's hash and expiry in place, so the
// previous token is unusable the instant rotation completes. Only the hash of
// a refresh token is ever persisted.
package session
