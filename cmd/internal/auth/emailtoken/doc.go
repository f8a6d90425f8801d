// Package emailtoken manages one-shot email credentials: verification links
// and password-reset links.
//
// A token is a random opaque value stored plaintext as its own lookup key.
// That is acceptable here because tokens are single-use and short-lived;
// they are consumed exactly once, ever. Issuing a new token of a kind
// deletes any prior unconsumed token of the same kind for that user, and
// consumption deletes the row whether it succeeds or fails on expiry.
package emailtoken
