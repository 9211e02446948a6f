// Package connection assembles a dinegate client session for the CLI:
// local storage, credential store, authorization gate, API client,
// lifecycle manager, navigation guard, metrics and health monitor.
//
// Terminal provides the console versions of the prompter, notifier and
// navigator the lifecycle manager and gate expect.
package connection
