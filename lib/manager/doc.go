/*
Package manager guarantees that a process opens every database only once.

MDBX-family engines must not have two independent environments open on the
same file inside one process: the second environment breaks the engine's
locking assumptions and can corrupt data. A Manager prevents that by keying
every opened store by its canonical path (absolute, with symlinks and "."
and ".." resolved) and handing out the same *store.Handle to every caller:

	m := manager.New()
	defer m.Close()

	h, err := m.Open(config.Default("./data").Bucket("users"))
	if err != nil {
		return err
	}
	err = h.Write(func(s *store.Store) error {
		return s.Put("users", []byte("alice"), []byte("admin"))
	})

Opening "./data" and "/srv/app/data" (the same directory) yields the same
handle. If a handle for the path already exists, Open returns it and ignores
the given config.

# Locking

Open holds the registry mutex for the whole lookup-or-insert sequence,
including directory creation and the engine open, so concurrent Open calls for one path open the
engine exactly once. Open calls for different paths wait for each other as
well. Get holds the mutex only for the lookup. The mutex is never held while
callers use a handle. Open on a closed Manager fails before anything is
created on disk.

# Lifetime

Entries are never evicted. Close ends the lifetime of the whole registry: it
closes every store under its handle's write lock and makes later Open calls
fail with ErrClosed.

# Metrics

Every Manager keeps its own VictoriaMetrics set with counters for Open
calls, reused handles, engine opens, failed opens and Get calls, plus a
gauge of registered stores. WriteMetrics writes them in Prometheus text
format.
*/
package manager
