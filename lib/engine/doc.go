// Package engine defines how kvenv talks to an embedded, memory-mapped
// key-value storage engine of the MDBX family.
//
// The package focuses on:
//   - A small Env/Txn interface covering what a Store needs
//   - Typed flag sets for environments (EnvFlags) and sub-databases (DBFlags)
//   - A registry of backends selected by Implementation name
//
// Key Components:
//
//   - Options: The parameters an environment is opened with (path, flags,
//     reader slots, sub-database count, map size). MaxDBs counts the default
//     database as well; backends translate it into their own accounting.
//     Path must exist unless the EnvNoSubdir flag is set; creating it is
//     left to the caller (config.Config.Env does).
//
//   - Flags: EnvFlags and DBFlags are kvenv's own bit values. They are what
//     gets persisted in configuration files, so they never change meaning.
//     DecodeEnvFlags and DecodeDBFlags reject unknown bits.
//
//   - Registry: Backends call Register from an init function, the same way
//     database/sql drivers do. Programs select the backends they want with
//     blank imports:
//
//     import _ "github.com/ValentinKolb/kvenv/lib/engine/gdbx"
//
// Backends:
//
//   - gdbx (github.com/ValentinKolb/kvenv/lib/engine/gdbx): pure Go, the
//     default.
//   - mdbx (github.com/ValentinKolb/kvenv/lib/engine/mdbx): libmdbx through
//     cgo. Both read and write the same file format.
//
// The testing package (github.com/ValentinKolb/kvenv/lib/engine/testing)
// provides a conformance suite every backend runs.
package engine
