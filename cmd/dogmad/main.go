// SPDX-License-Identifier: Apache-2.0

// Command dogmad runs the storage engine's HTTP surface: it loads a
// dogma.toml, opens the repository manager rooted at storage.root, and
// serves spec.md §6's routes until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dogmahq/dogma/internal/config"
	"github.com/dogmahq/dogma/internal/httpapi"
	"github.com/dogmahq/dogma/modules/dogma/envelope"
	"github.com/dogmahq/dogma/modules/dogma/repository"
)

func main() {
	configPath := flag.String("config", "dogma.toml", "location of the server configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Errorf("dogmad: load configuration %s: %v", *configPath, err)
		os.Exit(1)
	}
	if level, parseErr := logrus.ParseLevel(cfg.Log.Level); parseErr == nil {
		logrus.SetLevel(level)
	}

	kms, err := openKMS(cfg.KMS)
	if err != nil {
		logrus.Errorf("dogmad: open kms: %v", err)
		os.Exit(1)
	}

	manager, err := repository.NewManager(cfg.Storage.Root, repository.Options{
		KMS:               kms,
		MaxPrimaryCommits: cfg.Storage.MaxPrimaryCommits,
		MinSecondaryAge:   cfg.Storage.MinSecondaryAge.Duration,
		CacheNumCounters:  cfg.Cache.NumCounters,
		CacheMaxEntries:   cfg.Cache.MaxEntries,
	})
	if err != nil {
		logrus.Errorf("dogmad: open repository manager at %s: %v", cfg.Storage.Root, err)
		os.Exit(1)
	}

	srv := httpapi.NewServer(manager, httpapi.Options{
		Listen:              cfg.Server.Listen,
		DefaultWatchTimeout: cfg.Watch.DefaultTimeout.Duration,
		MaxWatchTimeout:     cfg.Watch.MaxTimeout.Duration,
	})

	c := newCloser()
	go c.listenSignal(context.Background(), srv)

	logrus.Infof("dogmad: listening on %s, storage root %s", cfg.Server.Listen, cfg.Storage.Root)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("dogmad: listen: %v", err)
		os.Exit(1)
	}
	<-c.ch
	logrus.Infof("dogmad: exited")
}

// openKMS constructs the envelope.KMS a dogma.toml's [kms] section selects.
// Provider "" leaves repositories unencrypted; "local" is the only keyed
// provider this module ships.
func openKMS(cfg config.KMS) (envelope.KMS, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		pemKey, err := os.ReadFile(cfg.LocalKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read local kms key %s: %w", cfg.LocalKeyPath, err)
		}
		return envelope.NewLocalRSAKMS(pemKey)
	default:
		return nil, fmt.Errorf("unknown kms provider %q", cfg.Provider)
	}
}
