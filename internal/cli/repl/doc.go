// Package repl provides the interactive shell of dinegate-cli.
//
// The shell keeps one session open for its whole lifetime, so the expiry
// poll and the continue prompt run while commands are typed:
//
//   - repl.go: read, split and dispatch loop
//   - completer.go: command name lookup for help
//   - history.go: command history persistence
package repl
