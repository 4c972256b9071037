package manager

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/ValentinKolb/kvenv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("manager")

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("manager: closed")

// Manager maps canonical paths to shared store handles. At most one Store
// exists per canonical path for the lifetime of the Manager.
//
// A Manager is created once by the owning process and passed explicitly to
// everything that opens stores.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*store.Handle
	closed bool

	metrics *managerMetrics
}

// New returns an empty Manager.
func New() *Manager {
	m := &Manager{
		stores: make(map[string]*store.Handle),
	}
	m.metrics = newManagerMetrics(m)
	return m
}

// Get returns the handle registered for path. path must exist, since it is
// canonicalized first. A path that was never opened yields ok == false.
func (m *Manager) Get(path string) (h *store.Handle, ok bool, err error) {
	m.metrics.getCalls.Inc()

	key, err := canonicalize(path, false)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	h, ok = m.stores[key]
	m.mu.Unlock()
	return h, ok, nil
}

// Open returns the handle for cfg.Path(), opening the store if no handle
// exists yet. If a handle exists, cfg is ignored and the engine is not
// touched. A failed open leaves nothing behind.
//
// Open calls are serialized, so one slow engine open delays all other
// Open calls of this Manager.
func (m *Manager) Open(cfg *config.Config) (*store.Handle, error) {
	m.metrics.openCalls.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	noSubdir := cfg.Flags().Has(engine.EnvNoSubdir)
	dir := cfg.Path()
	if noSubdir {
		dir = filepath.Dir(dir)
	}
	// best effort, the engine open reports the real problem
	_ = os.MkdirAll(dir, 0o755)

	key, err := canonicalize(cfg.Path(), noSubdir)
	if err != nil {
		m.metrics.openErrors.Inc()
		return nil, err
	}

	if h, ok := m.stores[key]; ok {
		m.metrics.openHits.Inc()
		plog.Debugf("reusing store for %s", key)
		return h, nil
	}

	m.metrics.engineOpens.Inc()
	s, err := store.Open(cfg)
	if err != nil {
		m.metrics.openErrors.Inc()
		plog.Warningf("failed to open store at %s: %v", key, err)
		return nil, err
	}

	h := store.NewHandle(key, s)
	m.stores[key] = h
	plog.Infof("registered store %s", key)
	return h, nil
}

// Paths returns the canonical paths of all registered stores, sorted.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	paths := make([]string, 0, len(m.stores))
	for p := range m.stores {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	sort.Strings(paths)
	return paths
}

// Len returns the number of registered stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Close ends the lifetime of the Manager. Every store is closed under the
// write lock of its handle, so Close waits for running Read and Write calls.
// Afterwards Get finds nothing and Open fails with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	handles := m.stores
	m.stores = make(map[string]*store.Handle)
	m.mu.Unlock()

	var errs []error
	for path, h := range handles {
		err := h.Write(func(s *store.Store) error {
			return s.Close()
		})
		if err != nil {
			errs = append(errs, err)
			plog.Errorf("failed to close store %s: %v", path, err)
		}
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// canonicalize returns the absolute, symlink-free form of path. If file is
// set, path may name a file that does not exist yet; its parent directory is
// resolved instead and the base name appended.
func canonicalize(path string, file bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !file || !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}
