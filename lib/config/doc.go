/*
Package config describes how a kvenv environment is opened.

A Config holds the map size, the number of reader slots, the environment
flags, the path, the ordered list of buckets (named sub-databases), the
readonly switch, per-bucket database flags and the engine backend. It is
built with fluent setters that mutate the Config in place and return it:

	cfg := config.Default("/var/lib/app/db").
		SetMapSize(4 << 30).
		Bucket("users").
		Bucket("sessions").
		DatabaseFlag("sessions", engine.DBDupSort)

Flag and DatabaseFlag merge with the bits already set; they never clear bits.

# Persistence

Save and SaveTo write the config as TOML, Load and LoadFrom read it back:

	map_size = 1073741824
	max_readers = 5
	flags = 0
	path = '/var/lib/app/db'
	buckets = ['users', 'sessions']
	readonly = false

	[database_flags]
	sessions = 2

Encoding or decoding failures are reported as ErrInvalidConfiguration with
the parser error wrapped; I/O errors of the file or stream are returned as
they are. Loaded values are not validated, so a file with unknown flag bits
loads fine and only Flags or DatabaseFlags panic later.

# Opening

Env creates the directory (best effort) and opens the environment with the
configured backend. The number of sub-databases is always len(Buckets())+1,
the extra one being the default database. Most callers should not call Env
directly but go through manager.Manager, which guarantees that a path is
opened only once per process.
*/
package config
