//go:build cgo

package mdbx

import (
	"errors"

	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/erigontech/mdbx-go/mdbx"
)

func init() {
	engine.Register(engine.ImplMdbx, Open)
}

// Open opens a libmdbx environment. It is registered as engine.ImplMdbx.
func Open(opts engine.Options) (engine.Env, error) {
	env, err := mdbx.NewEnv(mdbx.Label("kvenv"))
	if err != nil {
		return nil, err
	}

	// unlike gdbx, libmdbx keeps its core tables out of this limit
	if err := env.SetOption(mdbx.OptMaxDB, uint64(opts.MaxDBs)); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.SetOption(mdbx.OptMaxReaders, uint64(opts.MaxReaders)); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1); err != nil {
		env.Close()
		return nil, err
	}
	// goroutines migrate between threads, so reader slots must not be
	// bound to one
	if err := env.Open(opts.Path, envFlags(opts.Flags)|mdbx.NoTLS, opts.FileMode()); err != nil {
		env.Close()
		return nil, err
	}
	return &mdbxEnv{env: env}, nil
}

// --------------------------------------------------------------------------
// Flag translation
// --------------------------------------------------------------------------

func envFlags(f engine.EnvFlags) uint {
	var out uint
	if f&engine.EnvNoSubdir != 0 {
		out |= mdbx.NoSubdir
	}
	if f&engine.EnvReadOnly != 0 {
		out |= mdbx.Readonly
	}
	if f&engine.EnvWriteMap != 0 {
		out |= mdbx.WriteMap
	}
	if f&engine.EnvNoMetaSync != 0 {
		out |= mdbx.NoMetaSync
	}
	if f&engine.EnvSafeNoSync != 0 {
		out |= mdbx.SafeNoSync
	}
	if f&engine.EnvExclusive != 0 {
		out |= mdbx.Exclusive
	}
	if f&engine.EnvNoReadahead != 0 {
		out |= mdbx.NoReadahead
	}
	if f&engine.EnvNoMemInit != 0 {
		out |= mdbx.NoMemInit
	}
	if f&engine.EnvLifoReclaim != 0 {
		out |= mdbx.LifoReclaim
	}
	if f&engine.EnvNoTLS != 0 {
		out |= mdbx.NoTLS
	}
	return out
}

func dbFlags(f engine.DBFlags) uint {
	var out uint
	if f&engine.DBReverseKey != 0 {
		out |= mdbx.ReverseKey
	}
	if f&engine.DBDupSort != 0 {
		out |= mdbx.DupSort
	}
	if f&engine.DBIntegerKey != 0 {
		out |= mdbx.IntegerKey
	}
	if f&engine.DBDupFixed != 0 {
		out |= mdbx.DupFixed
	}
	if f&engine.DBIntegerDup != 0 {
		out |= mdbx.IntegerDup
	}
	if f&engine.DBReverseDup != 0 {
		out |= mdbx.ReverseDup
	}
	return out
}

func convertErr(err error) error {
	if err != nil && mdbx.IsNotFound(err) {
		return errors.Join(engine.ErrNotFound, err)
	}
	return err
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

type mdbxEnv struct {
	env *mdbx.Env
}

func (e *mdbxEnv) View(fn func(txn engine.Txn) error) error {
	return e.env.View(func(txn *mdbx.Txn) error {
		return fn(mdbxTxn{txn: txn})
	})
}

func (e *mdbxEnv) Update(fn func(txn engine.Txn) error) error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		return fn(mdbxTxn{txn: txn})
	})
}

func (e *mdbxEnv) Info() (engine.Info, error) {
	info, err := e.env.Info(nil)
	if err != nil {
		return engine.Info{}, err
	}
	return engine.Info{
		MapSize:    int64(info.MapSize),
		PageSize:   uint32(info.PageSize),
		MaxReaders: uint32(info.MaxReaders),
		NumReaders: uint32(info.NumReaders),
		LastTxnID:  uint64(info.LastTxnID),
	}, nil
}

func (e *mdbxEnv) Sync(force bool) error {
	return e.env.Sync(force, false)
}

func (e *mdbxEnv) Implementation() engine.Implementation {
	return engine.ImplMdbx
}

func (e *mdbxEnv) Close() error {
	e.env.Close()
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type mdbxTxn struct {
	txn *mdbx.Txn
}

func (t mdbxTxn) OpenDBI(name string, flags engine.DBFlags, create bool) (engine.DBI, error) {
	f := dbFlags(flags)
	if create {
		f |= mdbx.Create
	}
	dbi, err := t.txn.OpenDBISimple(name, f)
	if err != nil {
		return 0, convertErr(err)
	}
	return engine.DBI(dbi), nil
}

func (t mdbxTxn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	val, err := t.txn.Get(mdbx.DBI(dbi), key)
	return val, convertErr(err)
}

func (t mdbxTxn) Put(dbi engine.DBI, key, value []byte) error {
	return t.txn.Put(mdbx.DBI(dbi), key, value, mdbx.Upsert)
}

func (t mdbxTxn) Del(dbi engine.DBI, key []byte) error {
	return convertErr(t.txn.Del(mdbx.DBI(dbi), key, nil))
}

func (t mdbxTxn) ForEach(dbi engine.DBI, fn func(key, value []byte) error) error {
	cur, err := t.txn.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Get(nil, nil, mdbx.First)
	for ; err == nil; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t mdbxTxn) Stat(dbi engine.DBI) (engine.Stat, error) {
	st, err := t.txn.StatDBI(mdbx.DBI(dbi))
	if err != nil {
		return engine.Stat{}, err
	}
	return engine.Stat{
		Entries:       uint64(st.Entries),
		Depth:         uint32(st.Depth),
		BranchPages:   uint64(st.BranchPages),
		LeafPages:     uint64(st.LeafPages),
		OverflowPages: uint64(st.OverflowPages),
	}, nil
}
