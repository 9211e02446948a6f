// Package logger provides structured logging for dinegate.
//
// It wraps the standard library log/slog:
//
//   - logger.go: handler construction, dynamic level, package-level default
//   - context.go: context-aware logging with request IDs
//   - redact.go: bearer credential redaction
//
// Every attribute passes through the redaction hook, so components may log
// request headers or session snapshots without leaking the credential.
package logger
