// SPDX-License-Identifier: Apache-2.0

// Package config loads the storage engine's dogma.toml: storage roots,
// cache sizing, KMS provider selection and watch timeout bounds, the same
// way the teacher's modules/zeta/config package loads zeta.toml.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dogmahq/dogma/dogmaerr"
)

// Storage configures the repository manager's on-disk layout and its
// rolling primary/secondary object store split (spec.md §4.A).
type Storage struct {
	Root              string `toml:"root"`
	MaxPrimaryCommits int    `toml:"maxPrimaryCommits,omitzero"`
	MinSecondaryAge   Duration `toml:"minSecondaryAge,omitzero"`
}

// KMS selects and configures the key-management provider backing envelope
// encryption (spec.md §4.B). Provider "local" is the only one this module
// ships — a production deployment would add KMS/Vault providers behind the
// same envelope.KMS interface without changing this struct's shape.
type KMS struct {
	Provider   string `toml:"provider,omitempty"` // "local" or "" (encryption disabled)
	LocalKeyPath string `toml:"localKeyPath,omitempty"`
}

// Cache configures the per-repository result cache (spec.md §4.H).
type Cache struct {
	NumCounters int64 `toml:"numCounters,omitzero"`
	MaxEntries  int64 `toml:"maxEntries,omitzero"`
}

// Watch bounds the long-poll deadline callers may request (spec.md §4.G).
type Watch struct {
	DefaultTimeout Duration `toml:"defaultTimeout,omitzero"`
	MaxTimeout     Duration `toml:"maxTimeout,omitzero"`
}

// Server configures the HTTP listener of internal/httpapi.
type Server struct {
	Listen string `toml:"listen,omitempty"`
}

// Log configures structured logging — grounded on the teacher's own
// logrus-based CLI/server logging, not a spec-driven concern.
type Log struct {
	Level string `toml:"level,omitempty"` // logrus level name; defaults to "info"
}

// Config is the top-level dogma.toml document.
type Config struct {
	Server  Server  `toml:"server,omitempty"`
	Storage Storage `toml:"storage"`
	KMS     KMS     `toml:"kms,omitempty"`
	Cache   Cache   `toml:"cache,omitempty"`
	Watch   Watch   `toml:"watch,omitempty"`
	Log     Log     `toml:"log,omitempty"`
}

// Duration wraps time.Duration with a TOML string encoding ("30s", "24h"),
// matching the teacher's own Size type (modules/zeta/config/types.go) for
// giving a non-primitive TOML value custom (un)marshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("dogma: invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration a freshly-installed deployment runs
// with if dogma.toml omits a section entirely.
func Default() *Config {
	return &Config{
		Server: Server{Listen: ":8484"},
		Storage: Storage{
			MaxPrimaryCommits: 100000,
			MinSecondaryAge:   Duration{24 * time.Hour},
		},
		Cache: Cache{NumCounters: 100000, MaxEntries: 10000},
		Watch: Watch{DefaultTimeout: Duration{60 * time.Second}, MaxTimeout: Duration{10 * time.Minute}},
		Log:   Log{Level: "info"},
	}
}

// Load decodes path over Default(), so an operator's dogma.toml may specify
// only the sections it wants to override — the same partial-overlay shape
// as the teacher's config.Overwrite (modules/zeta/config/config.go), here
// achieved at decode time since dogma.toml has one document, not a
// global/system/repo-local merge chain.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "load configuration %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a configuration whose KMS provider is unknown, or whose
// storage root is unset.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return dogmaerr.New(dogmaerr.StorageException, "storage.root must not be empty")
	}
	switch c.KMS.Provider {
	case "", "local":
	default:
		return dogmaerr.New(dogmaerr.StorageException, "unknown kms.provider %q", c.KMS.Provider)
	}
	if c.KMS.Provider == "local" && c.KMS.LocalKeyPath == "" {
		return dogmaerr.New(dogmaerr.StorageException, "kms.localKeyPath is required when kms.provider is \"local\"")
	}
	return nil
}
