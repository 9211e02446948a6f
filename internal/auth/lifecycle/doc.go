// Package lifecycle drives the client session through its states: it
// polls the credential store for expiry, issues a single expiry-imminent
// warning, and forces logout on expiry or on authorization signals from
// the gate.
package lifecycle
