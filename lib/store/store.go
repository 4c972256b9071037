package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger("store")

// Store is one opened engine environment plus its resolved buckets.
// All methods are safe for concurrent use.
type Store struct {
	cfg     *config.Config
	env     engine.Env
	dbis    map[string]engine.DBI
	readers *xsync.Counter
	closed  *atomic.Bool

	// view is set on the read-only copy handed out by Handle.Read.
	view bool
}

// Info describes an opened store.
type Info struct {
	Path           string                 `json:"path"`
	Implementation engine.Implementation  `json:"implementation"`
	Readonly       bool                   `json:"readonly"`
	Env            engine.Info            `json:"env"`
	ActiveReaders  int64                  `json:"active_readers"`
	Buckets        map[string]engine.Stat `json:"buckets"`
}

// Open opens the environment described by cfg and resolves every bucket.
// Writable stores create missing buckets with their configured flags;
// readonly stores fail if a bucket does not exist.
// The config is copied, later changes to cfg have no effect.
func Open(cfg *config.Config) (*Store, error) {
	cfg = cfg.Clone()

	env, err := cfg.Env()
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		env:     env,
		dbis:    make(map[string]engine.DBI, len(cfg.Buckets())+1),
		readers: xsync.NewCounter(),
		closed:  new(atomic.Bool),
	}

	resolve := func(txn engine.Txn) error {
		names := append([]string{""}, cfg.Buckets()...)
		for _, name := range names {
			dbi, err := txn.OpenDBI(name, cfg.DatabaseFlags(name), !cfg.IsReadonly())
			if err != nil {
				return fmt.Errorf("bucket %q: %w", name, err)
			}
			s.dbis[name] = dbi
		}
		return nil
	}
	if cfg.IsReadonly() {
		err = env.View(resolve)
	} else {
		err = env.Update(resolve)
	}
	if err != nil {
		env.Close()
		return nil, err
	}

	plog.Infof("opened %s store at %s with %d bucket(s)", env.Implementation(), cfg.Path(), len(cfg.Buckets()))
	return s, nil
}

// Config returns a copy of the config the store was opened with.
func (s *Store) Config() *config.Config {
	return s.cfg.Clone()
}

// readOnlyView returns a Store sharing s's environment that rejects
// Update and Close with ErrReadOnly.
func (s *Store) readOnlyView() *Store {
	return &Store{
		cfg:     s.cfg,
		env:     s.env,
		dbis:    s.dbis,
		readers: s.readers,
		closed:  s.closed,
		view:    true,
	}
}

// Buckets returns the configured bucket names in order.
func (s *Store) Buckets() []string {
	return s.cfg.Buckets()
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// View runs fn inside a read transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.readers.Inc()
	defer s.readers.Dec()

	var inner error
	err := s.env.View(func(txn engine.Txn) error {
		inner = fn(&Tx{txn: txn, s: s})
		return inner
	})
	return s.convertErr(err, inner)
}

// Update runs fn inside a write transaction, committed if fn returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.view || s.cfg.IsReadonly() {
		return ErrReadOnly
	}

	var inner error
	err := s.env.Update(func(txn engine.Txn) error {
		inner = fn(&Tx{txn: txn, s: s, writable: true})
		return inner
	})
	return s.convertErr(err, inner)
}

// convertErr returns errors of the callback unchanged and wraps engine
// errors.
func (s *Store) convertErr(err, inner error) error {
	if err == nil {
		return nil
	}
	if inner != nil && errors.Is(err, inner) {
		return inner
	}
	return wrapError(RetCInternalError, "transaction failed", err)
}

// --------------------------------------------------------------------------
// Single-Operation Helpers
// --------------------------------------------------------------------------

// Get returns a copy of the value for key. The boolean reports whether the
// key was found.
func (s *Store) Get(bucket string, key []byte) (value []byte, loaded bool, err error) {
	err = s.View(func(tx *Tx) error {
		v, ok, err := tx.Get(bucket, key)
		if ok {
			value = append([]byte{}, v...)
		}
		loaded = ok
		return err
	})
	return value, loaded, err
}

// Has returns whether key exists in bucket.
func (s *Store) Has(bucket string, key []byte) (loaded bool, err error) {
	err = s.View(func(tx *Tx) error {
		_, loaded, err = tx.Get(bucket, key)
		return err
	})
	return loaded, err
}

// Put inserts or updates a key-value pair.
func (s *Store) Put(bucket string, key, value []byte) error {
	return s.Update(func(tx *Tx) error {
		return tx.Put(bucket, key, value)
	})
}

// Delete removes key from bucket. Deleting a missing key is not an error.
func (s *Store) Delete(bucket string, key []byte) error {
	return s.Update(func(tx *Tx) error {
		_, err := tx.Delete(bucket, key)
		return err
	})
}

// ForEach calls fn for every entry of bucket in key order. The slices are
// only valid during the call.
func (s *Store) ForEach(bucket string, fn func(key, value []byte) error) error {
	return s.View(func(tx *Tx) error {
		return tx.ForEach(bucket, fn)
	})
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Info returns information about the environment and every bucket.
func (s *Store) Info() (info Info, err error) {
	if s.closed.Load() {
		return Info{}, ErrClosed
	}
	info = Info{
		Path:           s.cfg.Path(),
		Implementation: s.env.Implementation(),
		Readonly:       s.cfg.IsReadonly(),
		ActiveReaders:  s.readers.Value(),
		Buckets:        make(map[string]engine.Stat, len(s.dbis)),
	}

	if info.Env, err = s.env.Info(); err != nil {
		return Info{}, wrapError(RetCInternalError, "env info", err)
	}
	err = s.View(func(tx *Tx) error {
		for name, dbi := range s.dbis {
			st, err := tx.txn.Stat(dbi)
			if err != nil {
				return wrapError(RetCInternalError, fmt.Sprintf("stat of bucket %q", name), err)
			}
			info.Buckets[name] = st
		}
		return nil
	})
	return info, err
}

// ActiveReaders returns the number of read transactions in flight.
func (s *Store) ActiveReaders() int64 {
	return s.readers.Value()
}

// Sync flushes buffered writes to disk.
func (s *Store) Sync(force bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.env.Sync(force); err != nil {
		return wrapError(RetCInternalError, "sync", err)
	}
	return nil
}

// Close closes the environment. Every later call fails with ErrClosed.
// Close must not run concurrently with other operations on the store,
// Handle.Write provides that. The store passed to Handle.Read cannot be
// closed.
func (s *Store) Close() error {
	if s.view {
		return ErrReadOnly
	}
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	plog.Infof("closing store at %s", s.cfg.Path())
	return s.env.Close()
}
