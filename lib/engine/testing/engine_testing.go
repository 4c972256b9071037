package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvenv/lib/engine"
)

// Opener is a function that opens an environment of the backend under test.
type Opener func(opts engine.Options) (engine.Env, error)

// defaultOptions returns options for an environment in the existing
// directory dir.
func defaultOptions(dir string) engine.Options {
	return engine.Options{
		Path:       dir,
		MaxReaders: 16,
		MaxDBs:     4,
		MapSize:    64 << 20,
	}
}

// RunEngineTests runs the conformance test suite for a backend.
func RunEngineTests(t *testing.T, name string, open Opener) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenInfo", func(t *testing.T) {
			testOpenInfo(t, open)
		})

		t.Run("PutGet", func(t *testing.T) {
			testPutGet(t, open)
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open)
		})

		t.Run("ForEachOrder", func(t *testing.T) {
			testForEachOrder(t, open)
		})

		t.Run("AbortOnError", func(t *testing.T) {
			testAbortOnError(t, open)
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, open)
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, open)
		})

		t.Run("Buckets", func(t *testing.T) {
			testBuckets(t, open)
		})

		t.Run("ConcurrentReaders", func(t *testing.T) {
			testConcurrentReaders(t, open)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustOpen(t *testing.T, open Opener, opts engine.Options) engine.Env {
	t.Helper()
	env, err := open(opts)
	if err != nil {
		t.Fatalf("failed to open environment at %s: %v", opts.Path, err)
	}
	return env
}

func mustBucket(t *testing.T, env engine.Env, name string) engine.DBI {
	t.Helper()
	var dbi engine.DBI
	err := env.Update(func(txn engine.Txn) (err error) {
		dbi, err = txn.OpenDBI(name, 0, true)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create bucket %q: %v", name, err)
	}
	return dbi
}

func put(env engine.Env, dbi engine.DBI, key, value string) error {
	return env.Update(func(txn engine.Txn) error {
		return txn.Put(dbi, []byte(key), []byte(value))
	})
}

// get returns a copy of the value, nil if the key does not exist
func get(env engine.Env, dbi engine.DBI, key string) ([]byte, error) {
	var out []byte
	err := env.View(func(txn engine.Txn) error {
		v, err := txn.Get(dbi, []byte(key))
		if err != nil {
			return err
		}
		out = append([]byte{}, v...)
		return nil
	})
	if errors.Is(err, engine.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenInfo(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	info, err := env.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.MaxReaders != 16 {
		t.Errorf("Expected 16 reader slots, got %d", info.MaxReaders)
	}
	if info.PageSize == 0 {
		t.Errorf("Expected a page size, got 0")
	}
	if env.Implementation() == "" {
		t.Errorf("Implementation should not be empty")
	}
}

func testPutGet(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	dbi := mustBucket(t, env, "data")

	if err := put(env, dbi, "key", "value1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := get(env, dbi, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(v, []byte("value1")) {
		t.Errorf("Expected value %s, got %s", "value1", v)
	}

	if err := put(env, dbi, "key", "value2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, _ = get(env, dbi, "key")
	if !bytes.Equal(v, []byte("value2")) {
		t.Errorf("Expected overwritten value %s, got %s", "value2", v)
	}

	err = env.View(func(txn engine.Txn) error {
		_, err := txn.Get(dbi, []byte("missing"))
		return err
	})
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing key, got %v", err)
	}
}

func testDelete(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	dbi := mustBucket(t, env, "data")
	if err := put(env, dbi, "key", "value"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := env.Update(func(txn engine.Txn) error {
		return txn.Del(dbi, []byte("key"))
	})
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if v, _ := get(env, dbi, "key"); v != nil {
		t.Errorf("Key should be gone after Del, got %s", v)
	}

	err = env.Update(func(txn engine.Txn) error {
		return txn.Del(dbi, []byte("key"))
	})
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when deleting a missing key, got %v", err)
	}
}

func testForEachOrder(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	dbi := mustBucket(t, env, "data")

	// insert out of order
	keys := []string{"c", "a", "d", "b"}
	err := env.Update(func(txn engine.Txn) error {
		for _, k := range keys {
			if err := txn.Put(dbi, []byte(k), []byte("v-"+k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var seen []string
	err = env.View(func(txn engine.Txn) error {
		return txn.ForEach(dbi, func(k, v []byte) error {
			if string(v) != "v-"+string(k) {
				return fmt.Errorf("unexpected value %s for key %s", v, k)
			}
			seen = append(seen, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("Expected keys in order %v, got %v", want, seen)
	}

	var stat engine.Stat
	err = env.View(func(txn engine.Txn) (err error) {
		stat, err = txn.Stat(dbi)
		return err
	})
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Entries != 4 {
		t.Errorf("Expected 4 entries, got %d", stat.Entries)
	}

	// an error returned by the callback stops the iteration
	stop := errors.New("stop")
	calls := 0
	err = env.View(func(txn engine.Txn) error {
		return txn.ForEach(dbi, func(k, v []byte) error {
			calls++
			return stop
		})
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Expected the callback error after one call, got %v after %d calls", err, calls)
	}
}

func testAbortOnError(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	dbi := mustBucket(t, env, "data")

	boom := errors.New("boom")
	err := env.Update(func(txn engine.Txn) error {
		if err := txn.Put(dbi, []byte("key"), []byte("value")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}
	if v, _ := get(env, dbi, "key"); v != nil {
		t.Errorf("Aborted write should not be visible, got %s", v)
	}
}

func testPersistence(t *testing.T, open Opener) {
	opts := defaultOptions(t.TempDir())

	env := mustOpen(t, open, opts)
	dbi := mustBucket(t, env, "data")
	if err := put(env, dbi, "key", "value"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := env.Sync(true); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	env = mustOpen(t, open, opts)
	defer env.Close()
	dbi = mustBucket(t, env, "data")
	v, err := get(env, dbi, "key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(v, []byte("value")) {
		t.Errorf("Expected value to survive reopen, got %s", v)
	}
}

func testReadOnly(t *testing.T, open Opener) {
	opts := defaultOptions(t.TempDir())

	env := mustOpen(t, open, opts)
	dbi := mustBucket(t, env, "data")
	if err := put(env, dbi, "key", "value"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	env.Close()

	opts.Flags |= engine.EnvReadOnly
	env = mustOpen(t, open, opts)
	defer env.Close()

	err := env.View(func(txn engine.Txn) (err error) {
		dbi, err = txn.OpenDBI("data", 0, false)
		return err
	})
	if err != nil {
		t.Fatalf("Opening an existing bucket read-only failed: %v", err)
	}
	if v, _ := get(env, dbi, "key"); !bytes.Equal(v, []byte("value")) {
		t.Errorf("Expected value %s, got %s", "value", v)
	}

	err = env.View(func(txn engine.Txn) error {
		_, err := txn.OpenDBI("missing", 0, false)
		return err
	})
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing bucket, got %v", err)
	}

	if err := put(env, dbi, "key", "other"); err == nil {
		t.Errorf("Write transaction on a read-only environment should fail")
	}
}

func testBuckets(t *testing.T, open Opener) {
	opts := defaultOptions(t.TempDir())
	env := mustOpen(t, open, opts)
	defer env.Close()

	// MaxDBs includes the default database
	names := []string{"a", "b", "c"}
	dbis := make(map[string]engine.DBI)
	for _, name := range names {
		dbis[name] = mustBucket(t, env, name)
	}

	for _, name := range names {
		if err := put(env, dbis[name], "key", name); err != nil {
			t.Fatalf("Put into %s failed: %v", name, err)
		}
	}
	for _, name := range names {
		v, err := get(env, dbis[name], "key")
		if err != nil {
			t.Fatalf("Get from %s failed: %v", name, err)
		}
		if string(v) != name {
			t.Errorf("Buckets are not independent: expected %s, got %s", name, v)
		}
	}
}

func testConcurrentReaders(t *testing.T, open Opener) {
	env := mustOpen(t, open, defaultOptions(t.TempDir()))
	defer env.Close()

	dbi := mustBucket(t, env, "data")
	if err := put(env, dbi, "key", "value"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	const readers = 8
	const iterations = 100

	var wg sync.WaitGroup
	errs := make(chan error, readers+1)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				v, err := get(env, dbi, "key")
				if err != nil {
					errs <- err
					return
				}
				if v == nil {
					errs <- errors.New("key disappeared")
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < iterations; j++ {
			if err := put(env, dbi, "key", fmt.Sprintf("value-%d", j)); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent access failed: %v", err)
	}
}
