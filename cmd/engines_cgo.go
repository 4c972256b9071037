//go:build cgo

package cmd

// the libmdbx backend needs cgo
import _ "github.com/ValentinKolb/kvenv/lib/engine/mdbx"
