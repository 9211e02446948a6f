// Package gate wraps the outgoing HTTP transport with session handling:
// it attaches the bearer credential to protected calls and turns 401/403
// responses into session signals.
package gate
