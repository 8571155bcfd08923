// Package cli implements the fab command-line interface.
//
// The package is organized around Cobra commands, with each command
// delegating to workflow functions for the actual work:
//
//   - Command definitions (cobra.Command instances)
//   - Invocation orchestration (Invoke: parse, validate, execute)
//   - Implementation details (in other internal packages)
//
// # Command Structure
//
// The root command is "fab". Its positional arguments are command tokens
// of the form name or name:key=value,... resolved against the commands
// section of .fab.yaml. Subcommands cover everything else:
//
//	fab <name>[:args] ... - Run named command sequences in order
//	fab list              - List the configured commands
//	fab shell             - Interactive prompt against the hosts
//	fab init              - Create a .fab.yaml config
//	fab version           - Print version information
//
// # Invocation Flow
//
// Invoke validates every token before executing any, so a typo in a later
// command cannot leave earlier ones half applied. Execution then builds
// the run environment from the config file, opens the connection pool on
// first use, and runs each command's steps in order. Ctrl-c tears down
// the pool and exits cleanly.
//
// # Flag Handling
//
// The global --config flag is defined on the root command and available
// to all subcommands. Everything else a run needs comes from the config
// file and command arguments, keeping the invocation grammar close to
// the token syntax.
package cli
