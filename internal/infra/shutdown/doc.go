// Package shutdown coordinates the end of long-running commands.
//
// Handler waits for SIGINT/SIGTERM (or an explicit Trigger) and runs the
// registered hooks in reverse order under a timeout. Notify runs a
// callback on every delivery of a signal until stopped.
package shutdown
