// Package identity implements Wren's user identity foundation.
//
// It owns the canonical User record (email, username, password hash custody,
// verification state, external provider linkage) and the persistence boundary
// consumed by the auth session and email token managers.
//
// This package is intentionally dependency-light and security-first.
package identity
