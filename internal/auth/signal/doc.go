// Package signal delivers session signals from the authorization gate and
// the navigation gate to whoever owns the session lifecycle.
//
// Handlers run synchronously on the emitting goroutine, in registration
// order. A handler may release subscriptions or register new ones; the
// change takes effect from the next emission.
package signal
