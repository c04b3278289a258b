// Package cfg defines the configuration surface bound from command-line
// flags, environment variables, and an optional YAML config file via
// viper and pflag.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of knobs a CozyFS attacher can set at init or
// attach time.
type Config struct {
	Backup      BackupConfig      `yaml:"backup"`
	Lock        LockConfig        `yaml:"lock"`
	Transaction TransactionConfig `yaml:"transaction"`
	Log         LogConfig         `yaml:"log"`
}

// BackupConfig controls the dual-region atomic backup mechanism.
type BackupConfig struct {
	// Enabled splits the buffer into two halves and maintains a
	// point-in-time snapshot; disabled halves memory overhead but makes a
	// torn active half unrecoverable after a crash.
	Enabled bool `yaml:"enabled"`

	// MinInterval throttles PerformBackup so a burst of commits does not
	// copy the whole half on every single one.
	MinInterval time.Duration `yaml:"min-interval" mapstructure:"min-interval"`
}

// LockConfig controls the timeout-based mutual-exclusion word.
type LockConfig struct {
	// WaitTimeout bounds how long Acquire waits for the lock before
	// reporting ETIMEDOUT. Zero means fail immediately if held; negative
	// means wait indefinitely.
	WaitTimeout time.Duration `yaml:"wait-timeout" mapstructure:"wait-timeout"`

	// HoldTimeout is the expiry an acquirer stamps into the lock word,
	// chosen so a refresh during idle callbacks keeps a well-behaved
	// attacher's lock alive.
	HoldTimeout time.Duration `yaml:"hold-timeout" mapstructure:"hold-timeout"`
}

// TransactionConfig controls the copy-on-write patch table.
type TransactionConfig struct {
	// MaxPatches bounds how many distinct pages one transaction may patch
	// at once, gating the host allocator against a single session
	// exhausting it.
	MaxPatches int64 `yaml:"max-patches" mapstructure:"max-patches"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// FilePath, if non-empty, routes logs through a rotating file sink
	// instead of stderr.
	FilePath string `yaml:"file-path" mapstructure:"file-path"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// BindFlags registers every Config field as a pflag flag bound into
// viper under the matching dotted key, so the eventual viper.Unmarshal
// into a Config picks up flags, environment variables, and config file
// values with the same precedence order viper always applies.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.Bool("backup-enabled", false, "Maintain a point-in-time backup half of the buffer.")
	if err := viper.BindPFlag("backup.enabled", flagSet.Lookup("backup-enabled")); err != nil {
		return err
	}

	flagSet.Duration("backup-min-interval", time.Second, "Minimum time between successive backups.")
	if err := viper.BindPFlag("backup.min-interval", flagSet.Lookup("backup-min-interval")); err != nil {
		return err
	}

	flagSet.Duration("lock-wait-timeout", 5*time.Second, "How long to wait to acquire the buffer lock.")
	if err := viper.BindPFlag("lock.wait-timeout", flagSet.Lookup("lock-wait-timeout")); err != nil {
		return err
	}

	flagSet.Duration("lock-hold-timeout", 10*time.Second, "Expiry stamped into the lock word on acquire.")
	if err := viper.BindPFlag("lock.hold-timeout", flagSet.Lookup("lock-hold-timeout")); err != nil {
		return err
	}

	flagSet.Int64("transaction-max-patches", 256, "Maximum number of pages one transaction may patch at once.")
	if err := viper.BindPFlag("transaction.max-patches", flagSet.Lookup("transaction-max-patches")); err != nil {
		return err
	}

	flagSet.String("log-level", "info", "Log level: debug, info, warn, error.")
	if err := viper.BindPFlag("log.level", flagSet.Lookup("log-level")); err != nil {
		return err
	}

	flagSet.String("log-file-path", "", "Path to a log file; empty routes logs to stderr.")
	if err := viper.BindPFlag("log.file-path", flagSet.Lookup("log-file-path")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log format: json or text.")
	if err := viper.BindPFlag("log.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	return nil
}

// Load reads configFile (if non-empty) as YAML into viper, then
// unmarshals the merged flag/env/file values into a Config.
func Load(configFile string) (Config, error) {
	var c Config
	if configFile != "" {
		viper.SetConfigFile(configFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := viper.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns the zero-config defaults, for embedders that skip
// flag/file binding entirely.
func Default() Config {
	return Config{
		Backup: BackupConfig{
			Enabled:     false,
			MinInterval: time.Second,
		},
		Lock: LockConfig{
			WaitTimeout: 5 * time.Second,
			HoldTimeout: 10 * time.Second,
		},
		Transaction: TransactionConfig{
			MaxPatches: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
