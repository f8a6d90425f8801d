// Package mail delivers transactional email for account verification and
// password reset flows.
//
// The package exposes a small Sender interface so the auth layer never
// depends on a concrete delivery mechanism. Production wiring uses the
// SMTP sender; development and tests use NoopSender or a recording fake.
package mail
