package manager

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/ValentinKolb/kvenv/lib/engine/gdbx"
	"github.com/ValentinKolb/kvenv/lib/store"
)

// counting wraps the gdbx backend and counts engine opens
const counting engine.Implementation = "counting"

var countingOpens atomic.Int64

func init() {
	engine.Register(counting, func(opts engine.Options) (engine.Env, error) {
		countingOpens.Add(1)
		return gdbx.Open(opts)
	})
}

func testConfig(path string) *config.Config {
	return config.Default(path).SetMapSize(16 << 20).SetMaxReaders(32).Bucket("a")
}

func newManager(t *testing.T) *Manager {
	m := New()
	t.Cleanup(func() { m.Close() })
	return m
}

func TestGetNeverOpened(t *testing.T) {
	m := newManager(t)

	dir := t.TempDir()
	h, ok, err := m.Get(dir)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || h != nil {
		t.Errorf("Expected no handle for a path that was never opened")
	}

	// a path that does not exist cannot be canonicalized
	_, _, err = m.Get(filepath.Join(dir, "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected a not-exist error, got %v", err)
	}
}

func TestOpenThenGet(t *testing.T) {
	m := newManager(t)
	path := filepath.Join(t.TempDir(), "db")

	h, err := m.Open(testConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	got, ok, err := m.Get(path)
	if err != nil || !ok {
		t.Fatalf("Get failed: %v (ok=%v)", err, ok)
	}
	if got != h {
		t.Errorf("Get returned a different handle than Open")
	}

	h2, err := m.Open(testConfig(path))
	if err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}
	if h2 != h {
		t.Errorf("Second Open returned a different handle")
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", m.Len())
	}
}

func TestConcurrentOpen(t *testing.T) {
	m := newManager(t)
	path := filepath.Join(t.TempDir(), "db")
	before := countingOpens.Load()

	const n = 32
	handles := make([]*store.Handle, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			handles[i], errs[i] = m.Open(testConfig(path).SetEngine(counting))
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Open %d failed: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("Open %d returned a different handle", i)
		}
	}
	if opens := countingOpens.Load() - before; opens != 1 {
		t.Errorf("Expected exactly one engine open, got %d", opens)
	}
	if m.EngineOpens() != 1 {
		t.Errorf("Expected metrics to report one engine open, got %d", m.EngineOpens())
	}

	// the shared store is usable from all holders
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := handles[i].Write(func(s *store.Store) error {
				return s.Put("a", []byte{byte(i)}, []byte("v"))
			})
			if err != nil {
				t.Errorf("Put %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestRelativeAndAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	m := newManager(t)

	rel, err := m.Open(testConfig("./db"))
	if err != nil {
		t.Fatalf("Open with relative path failed: %v", err)
	}

	canonical, err := filepath.EvalSymlinks(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("EvalSymlinks failed: %v", err)
	}
	abs, err := m.Open(testConfig(canonical))
	if err != nil {
		t.Fatalf("Open with absolute path failed: %v", err)
	}

	if rel != abs {
		t.Errorf("Relative and absolute path produced two handles")
	}
	if paths := m.Paths(); len(paths) != 1 || paths[0] != canonical {
		t.Errorf("Expected one entry %s, got %v", canonical, paths)
	}
	if rel.Path() != canonical {
		t.Errorf("Handle path should be canonical, got %s", rel.Path())
	}
}

func TestSymlinkAlias(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "db")
	link := filepath.Join(dir, "link")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	m := newManager(t)
	h1, err := m.Open(testConfig(target))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h2, err := m.Open(testConfig(link))
	if err != nil {
		t.Fatalf("Open through symlink failed: %v", err)
	}
	if h1 != h2 || m.Len() != 1 {
		t.Errorf("Symlink produced a second entry (%d entries)", m.Len())
	}

	h3, ok, err := m.Get(filepath.Join(link, ".", "..", "link"))
	if err != nil || !ok || h3 != h1 {
		t.Errorf("Get through an unclean symlink path failed: %v (ok=%v)", err, ok)
	}
}

func TestNoSubdir(t *testing.T) {
	m := newManager(t)
	file := filepath.Join(t.TempDir(), "nested", "data.db")
	cfg := testConfig(file).Flag(engine.EnvNoSubdir)

	h, err := m.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if filepath.Base(h.Path()) != "data.db" {
		t.Errorf("Expected the key to name the file, got %s", h.Path())
	}

	got, ok, err := m.Get(file)
	if err != nil || !ok || got != h {
		t.Errorf("Get of the data file failed: %v (ok=%v)", err, ok)
	}
}

func TestFailedOpenLeavesNoEntry(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	// there is nothing to open read-only in an empty directory
	_, err := m.Open(testConfig(dir).SetReadonly(true))
	if err == nil {
		t.Fatalf("Expected readonly open of an empty directory to fail")
	}

	if _, ok, _ := m.Get(dir); ok {
		t.Errorf("Failed open left an entry")
	}
	if m.Len() != 0 {
		t.Errorf("Expected an empty registry, got %v", m.Paths())
	}

	_, err = m.Open(testConfig(dir).SetEngine("unknown"))
	if !errors.Is(err, engine.ErrUnknownImplementation) {
		t.Errorf("Expected the engine error verbatim, got %v", err)
	}

	// the path can still be opened afterwards
	if _, err := m.Open(testConfig(dir)); err != nil {
		t.Errorf("Open after failure failed: %v", err)
	}
}

func TestOpenCanonicalizeError(t *testing.T) {
	m := newManager(t)

	// a regular file in the way makes the directory impossible
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := m.Open(testConfig(filepath.Join(file, "db")))
	if err == nil {
		t.Errorf("Expected an error for a path below a regular file")
	}
	if m.Len() != 0 {
		t.Errorf("Expected an empty registry")
	}
}

func TestClose(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "db")

	h, err := m.Open(testConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := m.Open(testConfig(path)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, ok, _ := m.Get(path); ok {
		t.Errorf("Expected no entries after Close")
	}

	// a closed manager does not touch the filesystem
	fresh := filepath.Join(t.TempDir(), "fresh", "db")
	if _, err := m.Open(testConfig(fresh)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := os.Stat(filepath.Dir(fresh)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected %s not to be created, got %v", filepath.Dir(fresh), err)
	}
	if err := m.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on second Close, got %v", err)
	}

	// old handles report the closed store
	err = h.Read(func(s *store.Store) error {
		_, _, err := s.Get("a", []byte("k"))
		return err
	})
	if !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected store.ErrClosed, got %v", err)
	}
}

func TestManagersAreIndependent(t *testing.T) {
	m1 := newManager(t)
	m2 := newManager(t)

	if _, err := m1.Open(testConfig(filepath.Join(t.TempDir(), "db"))); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if m2.Len() != 0 {
		t.Errorf("Managers share state")
	}
}

func TestWriteMetrics(t *testing.T) {
	m := newManager(t)
	path := filepath.Join(t.TempDir(), "db")

	m.Open(testConfig(path))
	m.Open(testConfig(path))
	m.Get(path)

	var buf bytes.Buffer
	m.WriteMetrics(&buf)
	out := buf.String()

	for _, want := range []string{
		"kvenv_manager_open_calls_total 2",
		"kvenv_manager_open_hits_total 1",
		"kvenv_manager_engine_opens_total 1",
		"kvenv_manager_open_errors_total 0",
		"kvenv_manager_get_calls_total 1",
		"kvenv_manager_stores 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics:\n%s", want, out)
		}
	}
}
