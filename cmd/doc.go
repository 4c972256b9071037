// Package cmd implements the command-line interface of kvenv. It provides a
// hierarchical command structure for working with local databases.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (put, get, del, has, list, info, perf)
//   - config: Commands to write and inspect TOML store configurations
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable KVENV_<FLAG> (e.g.
// KVENV_MAP_SIZE=4294967296), including from .env and .env.local files.
//
// See kvenv -help for a list of all commands.
package cmd
