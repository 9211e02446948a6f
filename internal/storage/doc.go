// Package storage provides durable string-keyed local storage for the
// client session.
//
// Three LocalStore implementations are available:
//
//   - Memory: process-local map, used by tests and ephemeral sessions
//   - Badger: embedded LSM store on disk, survives restarts
//   - Sealed: wraps another LocalStore and encrypts every value at rest
//
// Open selects and composes them from a Config.
package storage
