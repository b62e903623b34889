package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siteforge-labs/siteforge-backend/config"
	"github.com/siteforge-labs/siteforge-backend/internal/bootstrap"
)

// RunMigrate applies the schema and exits.
func RunMigrate(_ []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Database.AutoMigrate = true

	pool, err := bootstrap.OpenDB(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	pool.Close()

	fmt.Println("schema up to date")
}
