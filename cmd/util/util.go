package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/engine"
	"github.com/ValentinKolb/kvenv/lib/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags that describe a store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "config"
	cmd.PersistentFlags().String(key, "", WrapString("Path of a TOML config file (as written by 'kvenv config init'). Flags that are set explicitly override its values"))

	key = "path"
	cmd.PersistentFlags().String(key, "data", WrapString("Path of the database directory (or file with the NoSubdir flag)"))

	key = "map-size"
	cmd.PersistentFlags().Uint64(key, config.DefaultMapSize, WrapString("Upper bound of the database size in bytes"))

	key = "max-readers"
	cmd.PersistentFlags().Uint32(key, config.DefaultMaxReaders, WrapString("Maximum number of concurrent read transactions"))

	key = "flags"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated environment flags (NoSubdir, WriteMap, NoMetaSync, SafeNoSync, Exclusive, NoReadahead, NoMemInit, LifoReclaim, NoTLS)"))

	key = "buckets"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated bucket names. Buckets missing from the config file are appended"))

	key = "db-flags"
	cmd.PersistentFlags().String(key, "", WrapString("Database flags per bucket, format 'bucket=DupSort|DupFixed,other=IntegerKey'"))

	key = "readonly"
	cmd.PersistentFlags().Bool(key, false, WrapString("Open the database read-only"))

	key = "engine"
	cmd.PersistentFlags().String(key, "", WrapString(fmt.Sprintf("Engine backend (default %s)", engine.DefaultImplementation)))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kvenv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and sets up logging
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return logging.InitLoggers(viper.GetString("log-level"))
}

// GetConfig builds the store config from the config file and the flags
func GetConfig() (*config.Config, error) {
	var cfg *config.Config
	if file := viper.GetString("config"); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", file, err)
		}
		cfg = loaded
		if viper.IsSet("path") {
			cfg.SetPath(viper.GetString("path"))
		}
	} else {
		cfg = config.Default(viper.GetString("path"))
	}

	if viper.IsSet("map-size") {
		cfg.SetMapSize(viper.GetUint64("map-size"))
	}
	if viper.IsSet("max-readers") {
		cfg.SetMaxReaders(viper.GetUint32("max-readers"))
	}
	if viper.IsSet("readonly") {
		cfg.SetReadonly(viper.GetBool("readonly"))
	}
	if viper.IsSet("engine") {
		cfg.SetEngine(engine.Implementation(viper.GetString("engine")))
	}

	flags, err := engine.ParseEnvFlags(splitList(viper.GetString("flags")))
	if err != nil {
		return nil, err
	}
	cfg.Flag(flags)

	existing := cfg.Buckets()
	for _, b := range splitList(viper.GetString("buckets")) {
		if !contains(existing, b) {
			cfg.Bucket(b)
			existing = append(existing, b)
		}
	}

	dbFlags, err := ParseDatabaseFlags(viper.GetString("db-flags"))
	if err != nil {
		return nil, err
	}
	for bucket, f := range dbFlags {
		cfg.DatabaseFlag(bucket, f)
	}

	return cfg, nil
}

// ParseDatabaseFlags parses 'bucket=Flag|Flag,other=Flag'
func ParseDatabaseFlags(s string) (map[string]engine.DBFlags, error) {
	out := make(map[string]engine.DBFlags)
	for _, entry := range splitList(s) {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid database flags %q, expected bucket=Flag|Flag", entry)
		}
		f, err := engine.ParseDBFlags(strings.Split(parts[1], "|"))
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(parts[0])] |= f
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
