package config

import (
	"flag"
)

// Command line overrides of the config file. Nil until SetupFlags runs,
// which lets tests parse configs without registering flags.
var (
	console       *bool
	debug         *bool
	organizations *string
)

// Registers the global flags on flag.CommandLine. Must be called before
// flag.Parse.
func SetupFlags() {
	console = flag.Bool(
		"console",
		false,
		"Also log to stderr when logging to a file.")

	debug = flag.Bool(
		"debug",
		false,
		"Enable debug logging regardless of log.debug.")

	organizations = flag.String(
		"organizations",
		"",
		"Organization table to use in place of organizations_file.")
}
