// Package app provides the live-chat use cases.
//
// Authenticator gates socket handshakes and staff API calls, ModerationService owns
// the message lifecycle, and SessionService bootstraps listener sessions. Everything
// here depends on domain interfaces, never on concrete adapters.
package app
