// Package mdbx registers libmdbx (through github.com/erigontech/mdbx-go) as
// the kvenv backend "mdbx". It is only built with cgo enabled.
//
// libmdbx and gdbx share the on-disk format, so a database written by one
// backend can be opened by the other.
package mdbx
