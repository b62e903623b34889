package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/siteforge-labs/siteforge-backend/config"
	"github.com/siteforge-labs/siteforge-backend/internal/archive"
	"github.com/siteforge-labs/siteforge-backend/internal/bootstrap"
	"github.com/siteforge-labs/siteforge-backend/internal/builds"
	"github.com/siteforge-labs/siteforge-backend/internal/projects"
)

// RunExport packages one build version into a local zip, bypassing the
// API. Latest version when none is given.
func RunExport(args []string) {
	if len(args) < 1 {
		log.Fatal("usage: worker export <public_id> [version] [out.zip]")
	}
	publicID := args[0]

	version := 0
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("bad version %q: %v", args[1], err)
		}
		version = v
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

	p, err := projects.NewRepo(pool).GetByPublicID(ctx, publicID)
	if err != nil {
		log.Fatalf("project %s: %v", publicID, err)
	}

	buildRepo := builds.NewRepo(pool)
	var b *builds.Build
	if version <= 0 {
		b, err = buildRepo.GetLatest(ctx, p.ID)
	} else {
		b, err = buildRepo.GetByVersion(ctx, p.ID, version)
	}
	if err != nil {
		log.Fatalf("build: %v", err)
	}

	data, err := archive.Package(b.Files)
	if err != nil {
		log.Fatalf("package: %v", err)
	}

	outPath := archive.Name(b.Files, b.Version)
	if len(args) > 2 {
		outPath = args[2]
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", outPath, err)
	}

	fmt.Printf("wrote %s (%d bytes, version %d)\n", outPath, len(data), b.Version)
}
