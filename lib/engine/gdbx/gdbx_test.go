package gdbx

import (
	"testing"

	enginetesting "github.com/ValentinKolb/kvenv/lib/engine/testing"
)

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "gdbx", Open)
}
