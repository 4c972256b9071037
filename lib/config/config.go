package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pelletier/go-toml/v2"
)

var plog = logger.GetLogger("config")

// Defaults used by Default.
const (
	DefaultMapSize    uint64 = 1 << 30
	DefaultMaxReaders uint32 = 5
)

// ErrInvalidConfiguration is returned when a Config cannot be encoded or
// decoded. The underlying cause is wrapped.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Config describes how an engine environment is opened.
// A Config is not safe for concurrent mutation.
type Config struct {
	mapSize       uint64
	maxReaders    uint32
	flags         uint32
	path          string
	buckets       []string
	readonly      bool
	databaseFlags map[string]uint32
	engine        engine.Implementation
}

// Default returns a Config for path with a 1 GiB map, 5 reader slots, no
// flags and no buckets.
func Default(path string) *Config {
	return &Config{
		mapSize:       DefaultMapSize,
		maxReaders:    DefaultMaxReaders,
		path:          path,
		buckets:       []string{},
		databaseFlags: map[string]uint32{},
	}
}

// --------------------------------------------------------------------------
// Setters
// --------------------------------------------------------------------------

// SetMapSize sets the maximum size of the memory map in bytes.
func (c *Config) SetMapSize(size uint64) *Config {
	c.mapSize = size
	return c
}

// SetMaxReaders sets the number of reader slots.
func (c *Config) SetMaxReaders(n uint32) *Config {
	c.maxReaders = n
	return c
}

// Flag adds f to the environment flags.
func (c *Config) Flag(f engine.EnvFlags) *Config {
	c.flags |= uint32(f)
	return c
}

// SetPath sets the environment directory, or the data file with EnvNoSubdir.
func (c *Config) SetPath(path string) *Config {
	c.path = path
	return c
}

// Bucket appends a named sub-database. Names must be unique.
func (c *Config) Bucket(name string) *Config {
	c.buckets = append(c.buckets, name)
	return c
}

// SetReadonly opens the environment without write transactions.
func (c *Config) SetReadonly(readonly bool) *Config {
	c.readonly = readonly
	return c
}

// DatabaseFlag adds f to the flags of bucket name.
func (c *Config) DatabaseFlag(name string, f engine.DBFlags) *Config {
	if c.databaseFlags == nil {
		c.databaseFlags = map[string]uint32{}
	}
	c.databaseFlags[name] |= uint32(f)
	return c
}

// SetEngine selects the backend. The empty name selects the default.
func (c *Config) SetEngine(impl engine.Implementation) *Config {
	c.engine = impl
	return c
}

// --------------------------------------------------------------------------
// Getters
// --------------------------------------------------------------------------

// MapSize returns the maximum size of the memory map in bytes.
func (c *Config) MapSize() uint64 { return c.mapSize }

// MaxReaders returns the number of reader slots.
func (c *Config) MaxReaders() uint32 { return c.maxReaders }

// Path returns the configured path as given, not canonicalized.
func (c *Config) Path() string { return c.path }

// IsReadonly reports whether the environment is opened read-only.
func (c *Config) IsReadonly() bool { return c.readonly }

// Engine returns the configured backend, or engine.DefaultImplementation.
func (c *Config) Engine() engine.Implementation {
	if c.engine == "" {
		return engine.DefaultImplementation
	}
	return c.engine
}

// Buckets returns a copy of the bucket names in insertion order.
func (c *Config) Buckets() []string {
	return append([]string{}, c.buckets...)
}

// MaxDBs is the number of sub-databases the environment is opened with:
// every bucket plus the default database.
func (c *Config) MaxDBs() uint32 {
	return uint32(len(c.buckets)) + 1
}

// Flags decodes the environment flags. It panics if the stored bits contain
// an unknown flag, since only Config itself writes them.
func (c *Config) Flags() engine.EnvFlags {
	f, err := engine.DecodeEnvFlags(c.flags)
	if err != nil {
		panic(fmt.Sprintf("config: corrupt environment flags: %v", err))
	}
	return f
}

// DatabaseFlags decodes the flags of bucket name (zero if unset). It panics
// on unknown bits.
func (c *Config) DatabaseFlags(name string) engine.DBFlags {
	f, err := engine.DecodeDBFlags(c.databaseFlags[name])
	if err != nil {
		panic(fmt.Sprintf("config: corrupt database flags for %q: %v", name, err))
	}
	return f
}

// Equal reports whether both configs hold the same values. Nil and empty
// collections are equal.
func (c *Config) Equal(o *Config) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.mapSize != o.mapSize || c.maxReaders != o.maxReaders || c.flags != o.flags ||
		c.path != o.path || c.readonly != o.readonly || c.engine != o.engine {
		return false
	}
	if len(c.buckets) != len(o.buckets) || len(c.databaseFlags) != len(o.databaseFlags) {
		return false
	}
	for i := range c.buckets {
		if c.buckets[i] != o.buckets[i] {
			return false
		}
	}
	for k, v := range c.databaseFlags {
		if w, ok := o.databaseFlags[k]; !ok || v != w {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.buckets = append([]string{}, c.buckets...)
	cp.databaseFlags = make(map[string]uint32, len(c.databaseFlags))
	for k, v := range c.databaseFlags {
		cp.databaseFlags[k] = v
	}
	return &cp
}

// --------------------------------------------------------------------------
// Persistence
// --------------------------------------------------------------------------

// document is the persisted form of a Config
type document struct {
	MapSize       uint64            `toml:"map_size"`
	MaxReaders    uint32            `toml:"max_readers"`
	Flags         uint32            `toml:"flags"`
	Path          string            `toml:"path"`
	Buckets       []string          `toml:"buckets"`
	Readonly      bool              `toml:"readonly"`
	DatabaseFlags map[string]uint32 `toml:"database_flags"`
	Engine        string            `toml:"engine,omitempty"`
}

// SaveTo writes the config as TOML to w. Nothing is written if the config
// cannot be loaded back, e.g. because a name is not valid UTF-8.
func (c *Config) SaveTo(w io.Writer) error {
	if err := c.checkEncodable(); err != nil {
		return err
	}
	doc := document{
		MapSize:       c.mapSize,
		MaxReaders:    c.maxReaders,
		Flags:         c.flags,
		Path:          c.path,
		Buckets:       c.buckets,
		Readonly:      c.readonly,
		DatabaseFlags: c.databaseFlags,
		Engine:        string(c.engine),
	}
	if doc.Buckets == nil {
		doc.Buckets = []string{}
	}
	if doc.DatabaseFlags == nil {
		doc.DatabaseFlags = map[string]uint32{}
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	_, err = w.Write(data)
	return err
}

// checkEncodable rejects strings TOML cannot carry.
func (c *Config) checkEncodable() error {
	if !utf8.ValidString(c.path) {
		return fmt.Errorf("%w: path %q is not valid UTF-8", ErrInvalidConfiguration, c.path)
	}
	if !utf8.ValidString(string(c.engine)) {
		return fmt.Errorf("%w: engine %q is not valid UTF-8", ErrInvalidConfiguration, c.engine)
	}
	for _, name := range c.buckets {
		if !utf8.ValidString(name) {
			return fmt.Errorf("%w: bucket %q is not valid UTF-8", ErrInvalidConfiguration, name)
		}
	}
	names := make([]string, 0, len(c.databaseFlags))
	for name := range c.databaseFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !utf8.ValidString(name) {
			return fmt.Errorf("%w: database flags of bucket %q: name is not valid UTF-8", ErrInvalidConfiguration, name)
		}
	}
	return nil
}

// Save writes the config as TOML to the file at path.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := c.SaveTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	plog.Debugf("saved config for %s to %s", c.path, path)
	return nil
}

// LoadFrom reads a TOML config from r. Values are not validated.
func LoadFrom(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	c := &Config{
		mapSize:       doc.MapSize,
		maxReaders:    doc.MaxReaders,
		flags:         doc.Flags,
		path:          doc.Path,
		buckets:       doc.Buckets,
		readonly:      doc.Readonly,
		databaseFlags: doc.DatabaseFlags,
		engine:        engine.Implementation(doc.Engine),
	}
	if c.buckets == nil {
		c.buckets = []string{}
	}
	if c.databaseFlags == nil {
		c.databaseFlags = map[string]uint32{}
	}
	return c, nil
}

// Load reads a TOML config from the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFrom(f)
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// EnvFlags returns the flags the environment is opened with: Flags plus
// EnvReadOnly if the config is readonly.
func (c *Config) EnvFlags() engine.EnvFlags {
	f := c.Flags()
	if c.readonly {
		f |= engine.EnvReadOnly
	}
	return f
}

// Options converts the config into engine open options.
func (c *Config) Options() engine.Options {
	return engine.Options{
		Path:       c.path,
		Flags:      c.EnvFlags(),
		MaxReaders: c.maxReaders,
		MaxDBs:     c.MaxDBs(),
		MapSize:    c.mapSize,
	}
}

// Env opens the engine environment described by the config.
//
// The directory at Path (its parent for NoSubdir configs) is created first.
// That step is best effort: if the directory really cannot exist, the engine
// open fails and its error is returned unchanged.
func (c *Config) Env() (engine.Env, error) {
	opts := c.Options()

	dir := c.path
	if opts.Flags.Has(engine.EnvNoSubdir) {
		dir = filepath.Dir(c.path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		plog.Debugf("ignoring mkdir error for %s: %v", dir, err)
	}

	return engine.Open(c.engine, opts)
}

// --------------------------------------------------------------------------
// Printing
// --------------------------------------------------------------------------

// String returns a formatted, human-readable representation of the config.
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Environment")
	addField("Path", c.path)
	addField("Engine", string(c.Engine()))
	addField("Map Size", fmt.Sprintf("%d bytes", c.mapSize))
	addField("Max Readers", strconv.FormatUint(uint64(c.maxReaders), 10))
	addField("Max DBs", strconv.FormatUint(uint64(c.MaxDBs()), 10))
	addField("Readonly", strconv.FormatBool(c.readonly))
	// printing must not panic on a hand-edited file
	addField("Flags", engine.EnvFlags(c.flags).String())

	addSection("Buckets")
	if len(c.buckets) == 0 {
		sb.WriteString("  (default database only)\n")
	}
	for _, b := range c.buckets {
		addField(b, engine.DBFlags(c.databaseFlags[b]).String())
	}

	// flags for names that are not buckets are kept but never used
	var extra []string
	for name := range c.databaseFlags {
		if !contains(c.buckets, name) {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		addSection("Unused Database Flags")
		for _, name := range extra {
			addField(name, engine.DBFlags(c.databaseFlags[name]).String())
		}
	}
	return sb.String()
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
