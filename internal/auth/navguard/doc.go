// Package navguard decides whether a view transition may proceed given
// the current session.
package navguard
