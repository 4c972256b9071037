package gdbx

import (
	"errors"

	"github.com/Giulio2002/gdbx"
	"github.com/ValentinKolb/kvenv/lib/engine"
)

func init() {
	engine.Register(engine.ImplGdbx, Open)
}

// Open opens a gdbx environment. It is registered as engine.ImplGdbx.
func Open(opts engine.Options) (engine.Env, error) {
	env, err := gdbx.NewEnv(gdbx.Label("kvenv"))
	if err != nil {
		return nil, err
	}

	// gdbx counts its two core tables (GC and main) against the limit
	if err := env.SetOption(gdbx.OptMaxDB, uint64(opts.MaxDBs)+gdbx.CoreDBs); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.SetOption(gdbx.OptMaxReaders, uint64(opts.MaxReaders)); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.SetGeometry(-1, -1, int64(opts.MapSize), -1, -1, -1); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.Open(opts.Path, envFlags(opts.Flags), opts.FileMode()); err != nil {
		env.Close()
		return nil, err
	}
	return &gdbxEnv{env: env}, nil
}

// --------------------------------------------------------------------------
// Flag translation
// --------------------------------------------------------------------------

func envFlags(f engine.EnvFlags) uint {
	var out uint
	if f&engine.EnvNoSubdir != 0 {
		out |= gdbx.NoSubdir
	}
	if f&engine.EnvReadOnly != 0 {
		out |= gdbx.ReadOnly
	}
	if f&engine.EnvWriteMap != 0 {
		out |= gdbx.WriteMap
	}
	if f&engine.EnvNoMetaSync != 0 {
		out |= gdbx.NoMetaSync
	}
	if f&engine.EnvSafeNoSync != 0 {
		out |= gdbx.SafeNoSync
	}
	if f&engine.EnvExclusive != 0 {
		out |= gdbx.Exclusive
	}
	if f&engine.EnvNoReadahead != 0 {
		out |= gdbx.NoReadAhead
	}
	if f&engine.EnvNoMemInit != 0 {
		out |= gdbx.NoMemInit
	}
	if f&engine.EnvLifoReclaim != 0 {
		out |= gdbx.LifoReclaim
	}
	if f&engine.EnvNoTLS != 0 {
		out |= gdbx.NoStickyThreads
	}
	return out
}

func dbFlags(f engine.DBFlags) uint {
	var out uint
	if f&engine.DBReverseKey != 0 {
		out |= gdbx.ReverseKey
	}
	if f&engine.DBDupSort != 0 {
		out |= gdbx.DupSort
	}
	if f&engine.DBIntegerKey != 0 {
		out |= gdbx.IntegerKey
	}
	if f&engine.DBDupFixed != 0 {
		out |= gdbx.DupFixed
	}
	if f&engine.DBIntegerDup != 0 {
		out |= gdbx.IntegerDup
	}
	if f&engine.DBReverseDup != 0 {
		out |= gdbx.ReverseDup
	}
	return out
}

func convertErr(err error) error {
	if err != nil && gdbx.IsNotFound(err) {
		return errors.Join(engine.ErrNotFound, err)
	}
	return err
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

type gdbxEnv struct {
	env *gdbx.Env
}

func (e *gdbxEnv) View(fn func(txn engine.Txn) error) error {
	return e.env.View(func(txn *gdbx.Txn) error {
		return fn(gdbxTxn{txn: txn})
	})
}

func (e *gdbxEnv) Update(fn func(txn engine.Txn) error) error {
	return e.env.Update(func(txn *gdbx.Txn) error {
		return fn(gdbxTxn{txn: txn})
	})
}

func (e *gdbxEnv) Info() (engine.Info, error) {
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

func (e *gdbxEnv) Sync(force bool) error {
	return e.env.Sync(force, false)
}

func (e *gdbxEnv) Implementation() engine.Implementation {
	return engine.ImplGdbx
}

func (e *gdbxEnv) Close() error {
	e.env.Close()
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type gdbxTxn struct {
	txn *gdbx.Txn
}

func (t gdbxTxn) OpenDBI(name string, flags engine.DBFlags, create bool) (engine.DBI, error) {
	f := dbFlags(flags)
	if create {
		f |= gdbx.Create
	}
	dbi, err := t.txn.OpenDBISimple(name, f)
	if err != nil {
		return 0, convertErr(err)
	}
	return engine.DBI(dbi), nil
}

func (t gdbxTxn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	val, err := t.txn.Get(gdbx.DBI(dbi), key)
	return val, convertErr(err)
}

func (t gdbxTxn) Put(dbi engine.DBI, key, value []byte) error {
	return t.txn.Put(gdbx.DBI(dbi), key, value, gdbx.Upsert)
}

func (t gdbxTxn) Del(dbi engine.DBI, key []byte) error {
	return convertErr(t.txn.Del(gdbx.DBI(dbi), key, nil))
}

func (t gdbxTxn) ForEach(dbi engine.DBI, fn func(key, value []byte) error) error {
	cur, err := t.txn.OpenCursor(gdbx.DBI(dbi))
	if err != nil {
		return err
	}
	defer cur.Close()

	k, v, err := cur.Get(nil, nil, gdbx.First)
	for ; err == nil; k, v, err = cur.Get(nil, nil, gdbx.Next) {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	if gdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t gdbxTxn) Stat(dbi engine.DBI) (engine.Stat, error) {
	st, err := t.txn.StatDBI(gdbx.DBI(dbi))
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
