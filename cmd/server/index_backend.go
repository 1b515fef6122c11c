package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"kartoffels.dev/internal/persistence/indexdb"
	"kartoffels.dev/internal/platform/config"
)

// serverEnv holds the deployment knobs that are not flags.
type serverEnv struct {
	DeployEnv string `env:"DEPLOY_ENV"`

	IndexBackend   string        `env:"KARTOFFELS_INDEX_BACKEND" envDefault:"sqlite"`
	D1IngestURL    string        `env:"KARTOFFELS_INDEX_D1_INGEST_URL"`
	D1Token        string        `env:"KARTOFFELS_INDEX_D1_TOKEN"`
	D1FlushEvery   time.Duration `env:"KARTOFFELS_INDEX_D1_FLUSH" envDefault:"500ms"`
	D1BatchSize    int           `env:"KARTOFFELS_INDEX_D1_BATCH_SIZE" envDefault:"128"`
	D1MaxRetained  int           `env:"KARTOFFELS_INDEX_D1_MAX_RETAINED" envDefault:"8192"`
	EnableAdmin    *bool         `env:"KARTOFFELS_ENABLE_ADMIN_HTTP"`
	EnablePprof    bool          `env:"KARTOFFELS_ENABLE_PPROF_HTTP" envDefault:"false"`
	JournalEnabled bool          `env:"KARTOFFELS_JOURNAL" envDefault:"true"`
}

func loadServerEnv() (serverEnv, error) {
	var e serverEnv
	if err := config.ParseEnv(&e); err != nil {
		return e, err
	}
	e.IndexBackend = strings.ToLower(strings.TrimSpace(e.IndexBackend))
	return e, nil
}

// adminEnabled defaults to on outside staging and production.
func (e serverEnv) adminEnabled() bool {
	if e.EnableAdmin != nil {
		return *e.EnableAdmin
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func openRuntimeIndex(e serverEnv, dataDir string, disableDB bool, logger *log.Logger) (indexdb.Index, error) {
	if disableDB || dataDir == "" {
		return nil, nil
	}

	switch e.IndexBackend {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "worlds.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		if e.D1IngestURL == "" {
			return nil, fmt.Errorf("KARTOFFELS_INDEX_BACKEND=d1 but KARTOFFELS_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      e.D1IngestURL,
			Token:         e.D1Token,
			BatchSize:     e.D1BatchSize,
			MaxRetained:   e.D1MaxRetained,
			FlushInterval: e.D1FlushEvery,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported KARTOFFELS_INDEX_BACKEND: %s", e.IndexBackend)
	}
}
