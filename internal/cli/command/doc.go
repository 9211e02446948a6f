// Package command defines the dinegate-cli commands on urfave/cli/v2.
//
// Every command loads configuration in the app's Before hook, opens a
// connection.Manager for the duration of the action and prints results
// through the output package.
package command
