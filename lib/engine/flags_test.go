package engine

import (
	"testing"
)

func TestEnvFlagsString(t *testing.T) {
	tests := []struct {
		flags EnvFlags
		want  string
	}{
		{0, "none"},
		{EnvReadOnly, "ReadOnly"},
		{EnvNoSubdir | EnvNoTLS, "NoSubdir|NoTLS"},
		{EnvWriteMap | EnvFlags(1<<31), "WriteMap|0x80000000"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("EnvFlags(%d).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}

func TestDecodeEnvFlags(t *testing.T) {
	f, err := DecodeEnvFlags(uint32(EnvReadOnly | EnvExclusive))
	if err != nil {
		t.Fatalf("DecodeEnvFlags failed: %v", err)
	}
	if !f.Has(EnvReadOnly) || !f.Has(EnvExclusive) || f.Has(EnvWriteMap) {
		t.Errorf("Unexpected decoded flags %s", f)
	}

	if _, err := DecodeEnvFlags(uint32(EnvFlagsMask) + 1); err == nil {
		t.Errorf("Expected an error for an unknown bit")
	}
}

func TestParseEnvFlags(t *testing.T) {
	f, err := ParseEnvFlags([]string{"readonly", " NoSubdir ", "none", ""})
	if err != nil {
		t.Fatalf("ParseEnvFlags failed: %v", err)
	}
	if f != EnvReadOnly|EnvNoSubdir {
		t.Errorf("Expected ReadOnly|NoSubdir, got %s", f)
	}

	// names round trip through String
	all := EnvFlags(EnvFlagsMask)
	parsed, err := ParseEnvFlags(splitFlags(all.String()))
	if err != nil {
		t.Fatalf("ParseEnvFlags failed: %v", err)
	}
	if parsed != all {
		t.Errorf("Round trip lost bits: %s != %s", parsed, all)
	}

	if _, err := ParseEnvFlags([]string{"Bogus"}); err == nil {
		t.Errorf("Expected an error for an unknown name")
	}
}

func TestDBFlags(t *testing.T) {
	if got := (DBDupSort | DBIntegerKey).String(); got != "DupSort|IntegerKey" {
		t.Errorf("Unexpected string %q", got)
	}

	f, err := ParseDBFlags([]string{"dupsort", "DupFixed"})
	if err != nil {
		t.Fatalf("ParseDBFlags failed: %v", err)
	}
	if f != DBDupSort|DBDupFixed {
		t.Errorf("Expected DupSort|DupFixed, got %s", f)
	}

	if _, err := DecodeDBFlags(uint32(DBFlagsMask)); err != nil {
		t.Errorf("All known bits should decode: %v", err)
	}
	if _, err := DecodeDBFlags(1 << 20); err == nil {
		t.Errorf("Expected an error for an unknown bit")
	}
	if _, err := ParseDBFlags([]string{"ReadOnly"}); err == nil {
		t.Errorf("Environment flag names are not database flags")
	}
}

func splitFlags(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '|' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
