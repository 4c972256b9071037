// Package gdbx registers the pure-Go gdbx engine (github.com/Giulio2002/gdbx)
// as the kvenv backend "gdbx". It is the default backend and needs no cgo.
//
// gdbx reserves two internal tables (GC and main) inside its sub-database
// limit, so Open adds them on top of engine.Options.MaxDBs.
package gdbx
