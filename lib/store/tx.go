package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvenv/lib/engine"
)

// Tx is a transaction over all buckets of a Store. It is only valid inside
// the View or Update callback it was passed to.
type Tx struct {
	txn      engine.Txn
	s        *Store
	writable bool
}

func (tx *Tx) dbi(bucket string) (engine.DBI, error) {
	dbi, ok := tx.s.dbis[bucket]
	if !ok {
		return 0, NewError(RetCUnknownBucket, fmt.Sprintf("bucket %q is not configured", bucket))
	}
	return dbi, nil
}

// Get returns the value for key. The slice is only valid inside the
// transaction.
func (tx *Tx) Get(bucket string, key []byte) (value []byte, loaded bool, err error) {
	dbi, err := tx.dbi(bucket)
	if err != nil {
		return nil, false, err
	}
	value, err = tx.txn.Get(dbi, key)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapError(RetCInternalError, "get", err)
	}
	return value, true, nil
}

// Put inserts or updates a key-value pair.
func (tx *Tx) Put(bucket string, key, value []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	dbi, err := tx.dbi(bucket)
	if err != nil {
		return err
	}
	if err := tx.txn.Put(dbi, key, value); err != nil {
		return wrapError(RetCInternalError, "put", err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (tx *Tx) Delete(bucket string, key []byte) (deleted bool, err error) {
	if !tx.writable {
		return false, ErrReadOnly
	}
	dbi, err := tx.dbi(bucket)
	if err != nil {
		return false, err
	}
	err = tx.txn.Del(dbi, key)
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapError(RetCInternalError, "delete", err)
	}
	return true, nil
}

// ForEach calls fn for every entry of bucket in key order until fn returns
// an error, which is returned unchanged.
func (tx *Tx) ForEach(bucket string, fn func(key, value []byte) error) error {
	dbi, err := tx.dbi(bucket)
	if err != nil {
		return err
	}
	return tx.txn.ForEach(dbi, fn)
}
