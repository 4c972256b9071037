package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplGdbx Implementation = "gdbx"
	ImplMdbx Implementation = "mdbx"

	// DefaultImplementation is used when no implementation is configured.
	DefaultImplementation = ImplGdbx
)

// DBI is a handle to a sub-database (bucket) inside an environment.
type DBI uint32

// DefaultFileMode is used for data and lock files when Options.Mode is zero.
const DefaultFileMode os.FileMode = 0o644

// Options are the parameters an environment is opened with.
type Options struct {
	Path       string
	Flags      EnvFlags
	MaxReaders uint32
	// MaxDBs is the number of sub-databases the environment must be able to
	// hold, the default (unnamed) one included.
	MaxDBs  uint32
	MapSize uint64
	Mode    os.FileMode
}

// FileMode returns Mode, or DefaultFileMode if Mode is unset.
func (o Options) FileMode() os.FileMode {
	if o.Mode == 0 {
		return DefaultFileMode
	}
	return o.Mode
}

// Info describes an opened environment.
type Info struct {
	MapSize    int64  `json:"map_size"`
	PageSize   uint32 `json:"page_size"`
	MaxReaders uint32 `json:"max_readers"`
	NumReaders uint32 `json:"num_readers"`
	LastTxnID  uint64 `json:"last_txn_id"`
}

// Stat describes one sub-database.
type Stat struct {
	Entries       uint64 `json:"entries"`
	Depth         uint32 `json:"depth"`
	BranchPages   uint64 `json:"branch_pages"`
	LeafPages     uint64 `json:"leaf_pages"`
	OverflowPages uint64 `json:"overflow_pages"`
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Env is one opened engine environment.
// Implementations must be safe for concurrent use; write transactions are
// serialized by the engine itself.
type Env interface {
	// View runs fn inside a read-only transaction.
	View(fn func(txn Txn) error) error

	// Update runs fn inside a read-write transaction. The transaction is
	// committed if fn returns nil and aborted otherwise.
	Update(fn func(txn Txn) error) error

	// Info returns information about the environment.
	Info() (info Info, err error)

	// Sync flushes buffered data to disk.
	Sync(force bool) (err error)

	// Implementation returns the name of the backend.
	Implementation() Implementation

	// Close closes the environment. Every handle of the environment is
	// invalid afterwards.
	Close() (err error)
}

// Txn is a transaction of an Env. It must not be used after the callback it
// was passed to returns. Slices returned by Get and ForEach are only valid
// inside the transaction.
type Txn interface {
	// OpenDBI opens the sub-database name ("" is the default database).
	// If create is set the sub-database is created when it does not exist.
	OpenDBI(name string, flags DBFlags, create bool) (dbi DBI, err error)

	// Get returns the value of key, or ErrNotFound.
	Get(dbi DBI, key []byte) (value []byte, err error)

	// Put stores value under key, overwriting any previous value.
	Put(dbi DBI, key, value []byte) (err error)

	// Del deletes key, or returns ErrNotFound.
	Del(dbi DBI, key []byte) (err error)

	// ForEach calls fn for every entry in key order until fn returns an error.
	ForEach(dbi DBI, fn func(key, value []byte) error) (err error)

	// Stat returns statistics for the sub-database.
	Stat(dbi DBI) (stat Stat, err error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a key or sub-database does not exist.
	ErrNotFound = errors.New("engine: not found")

	// ErrUnknownImplementation is returned by Open for unregistered backends.
	ErrUnknownImplementation = errors.New("engine: unknown implementation")
)

// --------------------------------------------------------------------------
// Backend Registry
// --------------------------------------------------------------------------

// Opener opens an environment with the given options.
type Opener func(opts Options) (Env, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Implementation]Opener)
)

// Register makes a backend available under impl. It panics if impl is
// registered twice or open is nil.
func Register(impl Implementation, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if open == nil {
		panic("engine: Register opener is nil")
	}
	if _, dup := registry[impl]; dup {
		panic("engine: Register called twice for " + string(impl))
	}
	registry[impl] = open
}

// Implementations returns the names of all registered backends, sorted.
func Implementations() []Implementation {
	registryMu.RLock()
	defer registryMu.RUnlock()
	impls := make([]Implementation, 0, len(registry))
	for impl := range registry {
		impls = append(impls, impl)
	}
	sort.Slice(impls, func(i, j int) bool { return impls[i] < impls[j] })
	return impls
}

// Open opens an environment with the backend registered as impl. The empty
// name selects DefaultImplementation.
func Open(impl Implementation, opts Options) (Env, error) {
	if impl == "" {
		impl = DefaultImplementation
	}
	registryMu.RLock()
	open, ok := registry[impl]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownImplementation, impl, Implementations())
	}

	plog.Debugf("opening %s environment at %s (flags %s, readers %d, dbs %d, map size %d)",
		impl, opts.Path, opts.Flags, opts.MaxReaders, opts.MaxDBs, opts.MapSize)
	env, err := open(opts)
	if err != nil {
		plog.Warningf("failed to open %s environment at %s: %v", impl, opts.Path, err)
		return nil, err
	}
	return env, nil
}
