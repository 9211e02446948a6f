// Package confloader loads layered configuration.
//
// Sources are merged with koanf in this order, later ones winning:
//
//  1. Defaults supplied by the caller
//  2. A YAML configuration file
//  3. DINEGATE_* environment variables
//  4. Explicit overrides (command-line flags)
//
// Watcher reports edits to the configuration file so long-running
// commands can pick up a new log level without restarting.
package confloader
