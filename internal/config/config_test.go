// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dogma.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsForOmittedSections(t *testing.T) {
	path := writeConfig(t, `
[storage]
root = "/data/dogma"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/dogma", cfg.Storage.Root)
	assert.Equal(t, 100000, cfg.Storage.MaxPrimaryCommits)
	assert.Equal(t, 24*time.Hour, cfg.Storage.MinSecondaryAge.Duration)
	assert.Equal(t, ":8484", cfg.Server.Listen)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[storage]
root = "/data/dogma"
maxPrimaryCommits = 500
minSecondaryAge = "1h"

[cache]
maxEntries = 50
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Storage.MaxPrimaryCommits)
	assert.Equal(t, time.Hour, cfg.Storage.MinSecondaryAge.Duration)
	assert.Equal(t, int64(50), cfg.Cache.MaxEntries)
}

func TestLoadRejectsEmptyStorageRoot(t *testing.T) {
	path := writeConfig(t, `
[server]
listen = ":9000"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownKMSProvider(t *testing.T) {
	path := writeConfig(t, `
[storage]
root = "/data/dogma"

[kms]
provider = "vault"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsLocalKMSWithoutKeyPath(t *testing.T) {
	path := writeConfig(t, `
[storage]
root = "/data/dogma"

[kms]
provider = "local"
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadAcceptsLocalKMSWithKeyPath(t *testing.T) {
	path := writeConfig(t, `
[storage]
root = "/data/dogma"

[kms]
provider = "local"
localKeyPath = "/etc/dogma/kms.pem"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.KMS.Provider)
}
