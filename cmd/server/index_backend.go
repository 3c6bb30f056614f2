package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"worldsync.dev/internal/persistence/indexdb"
	"worldsync.dev/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.SessionLogger
	Close() error
	Stats() indexdb.Stats
	RecentSessions(ctx context.Context, limit int) ([]indexdb.SessionRow, error)
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported WS_INDEX_BACKEND: %s", backend)
	}
}
