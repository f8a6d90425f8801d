// Package password provides password hashing and verification for Wren.
//
// It implements Argon2id hashing with a PHC-encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password length policy validation
// - Strict hash decoding during verification with anti-DoS bounds
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes whose parameters exceed reasonable bounds.
package password
