// Package cmd implements the command-line interface of dBandit. It provides
// a hierarchical command structure for running the server and for managing
// the arms of a bandit as a client.
//
// The package is organized into several subpackages:
//
//   - bandit: Commands to add, read, update and benchmark the arms of a bandit
//   - serve: Commands for starting and configuring the dBandit server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dbandit -help for a list of all commands.
package cmd
