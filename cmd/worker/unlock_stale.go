package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siteforge-labs/siteforge-backend/config"
	"github.com/siteforge-labs/siteforge-backend/internal/bootstrap"
	"github.com/siteforge-labs/siteforge-backend/internal/locks"
)

// RunUnlockStale sweeps build locks older than the given age. Useful
// when the in-process reaper is disabled or a stuck project needs
// freeing right now.
func RunUnlockStale(args []string) {
	olderThan := 10 * time.Minute
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			log.Fatalf("bad duration %q: %v", args[0], err)
		}
		olderThan = d
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	mgr := locks.NewManager(pool, locks.Options{})
	n, err := mgr.ReleaseStale(ctx, olderThan)
	if err != nil {
		log.Fatalf("unlock-stale: %v", err)
	}

	fmt.Printf("released %d stale lock(s) older than %s\n", n, olderThan)
}
