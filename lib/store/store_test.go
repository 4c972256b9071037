package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/engine"
	_ "github.com/ValentinKolb/kvenv/lib/engine/gdbx"
)

func testConfig(t *testing.T) *config.Config {
	return config.Default(filepath.Join(t.TempDir(), "db")).
		SetMapSize(32 << 20).
		SetMaxReaders(16).
		Bucket("users").
		Bucket("sessions")
}

func mustOpen(t *testing.T, cfg *config.Config) *Store {
	t.Helper()
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBasicOperations(t *testing.T) {
	s := mustOpen(t, testConfig(t))

	if err := s.Put("users", []byte("alice"), []byte("admin")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	v, ok, err := s.Get("users", []byte("alice"))
	if err != nil || !ok || string(v) != "admin" {
		t.Errorf("Get returned %q, %v, %v", v, ok, err)
	}

	// buckets are independent
	if ok, _ := s.Has("sessions", []byte("alice")); ok {
		t.Errorf("Key leaked into another bucket")
	}
	if ok, _ := s.Has("users", []byte("alice")); !ok {
		t.Errorf("Has should find the key")
	}

	if err := s.Delete("users", []byte("alice")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get("users", []byte("alice")); ok {
		t.Errorf("Key should be deleted")
	}
	if err := s.Delete("users", []byte("alice")); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}

	// default database
	if err := s.Put("", []byte("k"), []byte("v")); err != nil {
		t.Errorf("Put into the default database failed: %v", err)
	}
}

func TestUnknownBucket(t *testing.T) {
	s := mustOpen(t, testConfig(t))

	err := s.Put("nope", []byte("k"), []byte("v"))
	var serr *Error
	if !errors.As(err, &serr) || serr.Code != RetCUnknownBucket {
		t.Errorf("Expected RetCUnknownBucket, got %v", err)
	}
	if _, _, err := s.Get("nope", []byte("k")); !errors.Is(err, ErrUnknownBucket) {
		t.Errorf("Expected ErrUnknownBucket, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := mustOpen(t, testConfig(t))
	s.Put("users", []byte("k"), []byte("value"))

	v, _, _ := s.Get("users", []byte("k"))
	v[0] = 'X'

	v2, _, _ := s.Get("users", []byte("k"))
	if string(v2) != "value" {
		t.Errorf("Modifying a returned value changed the store: %s", v2)
	}
}

func TestTransactions(t *testing.T) {
	s := mustOpen(t, testConfig(t))

	err := s.Update(func(tx *Tx) error {
		for i := 0; i < 10; i++ {
			if err := tx.Put("users", []byte(fmt.Sprintf("user-%02d", i)), []byte("x")); err != nil {
				return err
			}
		}
		deleted, err := tx.Delete("users", []byte("user-05"))
		if !deleted {
			return errors.New("expected user-05 to be deleted")
		}
		return err
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var keys []string
	err = s.ForEach("users", func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if len(keys) != 9 || keys[0] != "user-00" || keys[5] != "user-06" {
		t.Errorf("Unexpected keys %v", keys)
	}

	// callback errors are returned unchanged and abort the transaction
	boom := errors.New("boom")
	err = s.Update(func(tx *Tx) error {
		tx.Put("users", []byte("ghost"), []byte("x"))
		return boom
	})
	if err != boom {
		t.Errorf("Expected the callback error, got %v", err)
	}
	if ok, _ := s.Has("users", []byte("ghost")); ok {
		t.Errorf("Aborted write is visible")
	}

	// writes inside View are rejected
	err = s.View(func(tx *Tx) error {
		return tx.Put("users", []byte("k"), []byte("v"))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
}

func TestReadonly(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Put("users", []byte("alice"), []byte("admin"))
	s.Close()

	ro := mustOpen(t, cfg.Clone().SetReadonly(true))

	if v, ok, _ := ro.Get("users", []byte("alice")); !ok || string(v) != "admin" {
		t.Errorf("Expected to read existing data, got %q", v)
	}
	if err := ro.Put("users", []byte("bob"), []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	if err := ro.Delete("users", []byte("alice")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	ro.Close()

	// readonly opens do not create buckets
	_, err = Open(cfg.Clone().Bucket("missing").SetReadonly(true))
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing bucket, got %v", err)
	}
}

func TestDatabaseFlags(t *testing.T) {
	cfg := testConfig(t).Bucket("multi").DatabaseFlag("multi", engine.DBDupSort)
	s := mustOpen(t, cfg)

	if err := s.Put("multi", []byte("k"), []byte("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("multi", []byte("k"), []byte("b")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	n := 0
	s.ForEach("multi", func(k, v []byte) error {
		n++
		return nil
	})
	if n != 2 {
		t.Errorf("Expected 2 duplicate entries, got %d", n)
	}
}

func TestInfo(t *testing.T) {
	s := mustOpen(t, testConfig(t))
	s.Put("users", []byte("a"), []byte("1"))
	s.Put("users", []byte("b"), []byte("2"))

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Implementation != engine.ImplGdbx || info.Readonly {
		t.Errorf("Unexpected info %+v", info)
	}
	if info.Env.MaxReaders != 16 {
		t.Errorf("Expected 16 reader slots, got %d", info.Env.MaxReaders)
	}
	if info.Buckets["users"].Entries != 2 || info.Buckets["sessions"].Entries != 0 {
		t.Errorf("Unexpected bucket stats %+v", info.Buckets)
	}
	if _, ok := info.Buckets[""]; !ok {
		t.Errorf("Expected stats for the default database")
	}
	if s.ActiveReaders() != 0 {
		t.Errorf("Expected no readers in flight, got %d", s.ActiveReaders())
	}
}

func TestActiveReaders(t *testing.T) {
	s := mustOpen(t, testConfig(t))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.View(func(tx *Tx) error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside
	if n := s.ActiveReaders(); n != 1 {
		t.Errorf("Expected 1 reader in flight, got %d", n)
	}
	close(release)
	<-done

	if n := s.ActiveReaders(); n != 0 {
		t.Errorf("Expected no readers after the transaction, got %d", n)
	}
}

func TestClose(t *testing.T) {
	s, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on second close, got %v", err)
	}
	if _, _, err := s.Get("users", []byte("k")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := s.Put("users", []byte("k"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := s.Info(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestConfigIsCopied(t *testing.T) {
	cfg := testConfig(t)
	snapshot := cfg.Clone()
	s := mustOpen(t, cfg)

	cfg.Bucket("late")
	if !s.Config().Equal(snapshot) {
		t.Errorf("Store config changed after open:\n%s", s.Config())
	}

	// mutating the returned copy has no effect either
	s.Config().Bucket("other")
	if len(s.Buckets()) != 2 {
		t.Errorf("Unexpected buckets %v", s.Buckets())
	}
}

func TestHandle(t *testing.T) {
	s := mustOpen(t, testConfig(t))
	h := NewHandle("/canonical", s)

	if h.Path() != "/canonical" {
		t.Errorf("Unexpected path %s", h.Path())
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := h.Write(func(s *Store) error {
				return s.Put("users", []byte(fmt.Sprintf("k%d", i)), []byte("v"))
			})
			if err != nil {
				t.Errorf("Put through handle failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	h.Read(func(s *Store) error {
		return s.ForEach("users", func(k, v []byte) error {
			count++
			return nil
		})
	})
	if count != 8 {
		t.Errorf("Expected 8 keys, got %d", count)
	}

	if err := h.Write(func(s *Store) error { return s.Close() }); err != nil {
		t.Errorf("Close through handle failed: %v", err)
	}
}

func TestHandleReadIsReadOnly(t *testing.T) {
	s := mustOpen(t, testConfig(t))
	h := NewHandle("/canonical", s)

	if err := h.Write(func(s *Store) error { return s.Put("users", []byte("alice"), []byte("admin")) }); err != nil {
		t.Fatalf("Put through Write failed: %v", err)
	}

	// keep one shared holder active while the others run
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- h.Read(func(s *Store) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	tests := []struct {
		name string
		fn   func(s *Store) error
	}{
		{"put", func(s *Store) error { return s.Put("users", []byte("bob"), []byte("user")) }},
		{"delete", func(s *Store) error { return s.Delete("users", []byte("alice")) }},
		{"update", func(s *Store) error {
			return s.Update(func(tx *Tx) error { return tx.Put("users", []byte("carol"), []byte("user")) })
		}},
		{"close", func(s *Store) error { return s.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Read(tt.fn)
			if !errors.Is(err, ErrReadOnly) {
				t.Errorf("Expected ErrReadOnly, got %v", err)
			}
		})
	}

	t.Run("reads", func(t *testing.T) {
		err := h.Read(func(s *Store) error {
			v, ok, err := s.Get("users", []byte("alice"))
			if err != nil {
				return err
			}
			if !ok || string(v) != "admin" {
				t.Errorf("Expected alice=admin, got %q (found %v)", v, ok)
			}
			return nil
		})
		if err != nil {
			t.Errorf("Get through Read failed: %v", err)
		}
	})

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Held Read failed: %v", err)
	}

	for _, key := range []string{"bob", "carol"} {
		if ok, _ := s.Has("users", []byte(key)); ok {
			t.Errorf("Expected %s to be absent", key)
		}
	}
	if ok, _ := s.Has("users", []byte("alice")); !ok {
		t.Errorf("Expected alice to survive the rejected delete")
	}
	if _, err := s.Info(); err != nil {
		t.Errorf("Expected store to stay open after the rejected close, got %v", err)
	}
}

func TestErrorString(t *testing.T) {
	err := wrapError(RetCInternalError, "put", errors.New("map full"))
	if got := err.Error(); got != "StoreError (code InternalError): put: map full" {
		t.Errorf("Unexpected message %q", got)
	}
	if RetCode(99).String() != "Unknown" {
		t.Errorf("Unexpected name for an unknown code")
	}
}
