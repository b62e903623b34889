package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/siteforge-labs/siteforge-backend/config"
	"github.com/siteforge-labs/siteforge-backend/internal/archive"
	"github.com/siteforge-labs/siteforge-backend/internal/auth"
	"github.com/siteforge-labs/siteforge-backend/internal/bootstrap"
	"github.com/siteforge-labs/siteforge-backend/internal/builds"
	"github.com/siteforge-labs/siteforge-backend/internal/conversations"
	"github.com/siteforge-labs/siteforge-backend/internal/events"
	"github.com/siteforge-labs/siteforge-backend/internal/locks"
	"github.com/siteforge-labs/siteforge-backend/internal/pipeline"
	"github.com/siteforge-labs/siteforge-backend/internal/projects"
	"github.com/siteforge-labs/siteforge-backend/internal/publish"
	"github.com/siteforge-labs/siteforge-backend/internal/sitegen"
)

const serviceName = "siteforge-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Pipeline.AnthropicAPIKey == "" {
		log.Fatal("ANTHROPIC_API_KEY is required")
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	pool, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	cache, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer cache.Close()

	authClient, err := auth.InitializeFirebase(&cfg.Firebase)
	if err != nil {
		log.Fatalf("firebase: %v", err)
	}

	engine := pipeline.NewAnthropicEngine(cfg.Pipeline)
	runner := pipeline.NewOrchestrator(engine, cfg.Pipeline.Budget)

	lockMgr := locks.NewManager(pool, locks.Options{FailOpen: cfg.Lock.FailOpen})
	if cfg.Lock.ReaperEnabled {
		reaper := locks.NewReaper(lockMgr, cfg.Lock.StaleAfter, cfg.Lock.ReaperSchedule)
		if err := reaper.Start(); err != nil {
			log.Fatalf("lock reaper: %v", err)
		}
		defer reaper.Stop()
	}

	var sitePublisher sitegen.SitePublisher
	if cfg.Publish.Bucket != "" {
		pub, err := publish.New(ctx, cfg.Publish)
		if err != nil {
			log.Fatalf("publisher: %v", err)
		}
		sitePublisher = pub
	}

	svc := sitegen.NewService(sitegen.Deps{
		Projects:  projects.NewRepo(pool),
		Locks:     lockMgr,
		Builds:    builds.NewRepo(pool),
		Messages:  conversations.NewRepo(pool),
		Runner:    runner,
		Events:    events.NewPublisher(cache),
		Publisher: sitePublisher,
		Archives:  archive.NewCache(cache, cfg.Redis.ArtifactTTL),
		Budget:    cfg.Pipeline.Budget,
	})

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		DB:          pool,
		Cache:       cache,
		AuthClient:  authClient,
		Service:     svc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[api] listening on :%s env=%s", cfg.Server.Port, cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[api] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}
