package engine

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Environment Flags
// --------------------------------------------------------------------------

// EnvFlags represents environment open flags as bit flags.
// The bit values are kvenv's own; every backend translates them into the
// constants of its engine.
type EnvFlags uint32

const (
	EnvNoSubdir     EnvFlags = 1 << iota // Path names the data file, not a directory
	EnvReadOnly                          // Open read-only, no write transactions
	EnvWriteMap                          // Map the data file writable
	EnvNoMetaSync                        // Skip the meta page sync after commit
	EnvSafeNoSync                        // Skip the data sync but keep steady commits
	EnvExclusive                         // Exclusive (monopolistic) mode
	EnvNoReadahead                       // Disable OS readahead
	EnvNoMemInit                         // Skip zeroing malloc'd memory
	EnvLifoReclaim                       // LIFO policy for GC reclamation
	EnvNoTLS                             // Allow transactions to move between threads

	envFlagsEnd
)

// EnvFlagsMask holds every known environment flag bit.
const EnvFlagsMask = envFlagsEnd - 1

var envFlagNames = []struct {
	flag EnvFlags
	name string
}{
	{EnvNoSubdir, "NoSubdir"},
	{EnvReadOnly, "ReadOnly"},
	{EnvWriteMap, "WriteMap"},
	{EnvNoMetaSync, "NoMetaSync"},
	{EnvSafeNoSync, "SafeNoSync"},
	{EnvExclusive, "Exclusive"},
	{EnvNoReadahead, "NoReadahead"},
	{EnvNoMemInit, "NoMemInit"},
	{EnvLifoReclaim, "LifoReclaim"},
	{EnvNoTLS, "NoTLS"},
}

// Has reports whether all bits of o are set in f.
func (f EnvFlags) Has(o EnvFlags) bool {
	return f&o == o
}

func (f EnvFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range envFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ EnvFlagsMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// DecodeEnvFlags converts raw bits into EnvFlags.
// It fails if bits contains anything outside EnvFlagsMask.
func DecodeEnvFlags(bits uint32) (EnvFlags, error) {
	if unknown := EnvFlags(bits) &^ EnvFlagsMask; unknown != 0 {
		return 0, fmt.Errorf("unknown environment flag bits 0x%x", uint32(unknown))
	}
	return EnvFlags(bits), nil
}

// ParseEnvFlags parses flag names (case-insensitive, as printed by String).
func ParseEnvFlags(names []string) (EnvFlags, error) {
	var f EnvFlags
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "none") {
			continue
		}
		found := false
		for _, n := range envFlagNames {
			if strings.EqualFold(n.name, name) {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown environment flag %q", name)
		}
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Database Flags
// --------------------------------------------------------------------------

// DBFlags represents per-bucket (sub-database) flags as bit flags.
type DBFlags uint32

const (
	DBReverseKey DBFlags = 1 << iota // Compare keys in reverse byte order
	DBDupSort                        // Allow multiple sorted values per key
	DBIntegerKey                     // Keys are native byte order integers
	DBDupFixed                       // Duplicate values all have the same size
	DBIntegerDup                     // Duplicate values are native byte order integers
	DBReverseDup                     // Compare duplicate values in reverse byte order

	dbFlagsEnd
)

// DBFlagsMask holds every known database flag bit.
const DBFlagsMask = dbFlagsEnd - 1

var dbFlagNames = []struct {
	flag DBFlags
	name string
}{
	{DBReverseKey, "ReverseKey"},
	{DBDupSort, "DupSort"},
	{DBIntegerKey, "IntegerKey"},
	{DBDupFixed, "DupFixed"},
	{DBIntegerDup, "IntegerDup"},
	{DBReverseDup, "ReverseDup"},
}

// Has reports whether all bits of o are set in f.
func (f DBFlags) Has(o DBFlags) bool {
	return f&o == o
}

func (f DBFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range dbFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := f &^ DBFlagsMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// DecodeDBFlags converts raw bits into DBFlags.
// It fails if bits contains anything outside DBFlagsMask.
func DecodeDBFlags(bits uint32) (DBFlags, error) {
	if unknown := DBFlags(bits) &^ DBFlagsMask; unknown != 0 {
		return 0, fmt.Errorf("unknown database flag bits 0x%x", uint32(unknown))
	}
	return DBFlags(bits), nil
}

// ParseDBFlags parses flag names (case-insensitive, as printed by String).
func ParseDBFlags(names []string) (DBFlags, error) {
	var f DBFlags
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "none") {
			continue
		}
		found := false
		for _, n := range dbFlagNames {
			if strings.EqualFold(n.name, name) {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown database flag %q", name)
		}
	}
	return f, nil
}
