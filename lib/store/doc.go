/*
Package store wraps one opened engine environment together with its buckets.

A Store is opened from a config.Config. Every configured bucket is resolved
when the store opens: writable stores create missing buckets with the
configured database flags, readonly stores fail if a bucket is missing. The
empty bucket name addresses the default database, which always exists. Named
buckets are recorded in the default database, so keys written there must not
collide with bucket names.

Operations come in two flavours. The single-operation helpers (Get, Has,
Put, Delete, ForEach) each run one transaction. View and Update hand a Tx to
a callback for several operations in one transaction:

	err := s.Update(func(tx *store.Tx) error {
		if err := tx.Put("users", []byte("alice"), data); err != nil {
			return err
		}
		_, err := tx.Delete("pending", []byte("alice"))
		return err
	})

Errors of the callback are returned unchanged. Everything else is reported
as *Error with a RetCode:

  - RetCUnknownBucket: the bucket is not part of the config
  - RetCReadOnly: a write on a readonly store
  - RetCClosed: the store has been closed
  - RetCInternalError: the engine failed; the cause is wrapped

Engine failures of Open itself are returned as they are.

# Handles

Processes do not share a Store directly but a Handle: a pointer to the store
plus a sync.RWMutex. Handles are handed out by manager.Manager, which makes
sure there is at most one Store per path. Handle.Read holds the shared lock
and passes a read-only view of the store, on which writes fail with
RetCReadOnly. Handle.Write holds the exclusive lock and is required for
Put, Delete, Update and Close.

The number of read transactions in flight is tracked with an xsync.Counter
and reported by Info next to the engine's reader slot limit.
*/
package store
