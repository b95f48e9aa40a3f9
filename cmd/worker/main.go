package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
	"github.com/ignite/linkedin-outreach/internal/pkg/distlock"
	"github.com/ignite/linkedin-outreach/internal/worker"
)

// Headless outreach worker: scheduler, account monitor, and email verifier
// without the HTTP API. Used when the API and the engines are deployed
// separately; the distributed lock keeps at most one scheduler active.
func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var analyzer *ai.Analyzer
	if cfg.Anthropic.Enabled {
		analyzer, err = ai.NewFromConfig(cfg.Anthropic)
		if err != nil {
			log.Fatalf("Failed to init analyzer: %v", err)
		}
	}

	cache := linkedin.NewResponseCache()
	clients := func(accountID string) worker.MessagingClient {
		return linkedin.NewClient(cfg.Unipile, accountID, cache)
	}

	var authoring worker.Analyzer
	if analyzer != nil {
		authoring = analyzer
	}

	lock := distlock.NewLock(redisClient, db, "outreach-scheduler", 2*time.Minute)
	scheduler := worker.NewOutreachScheduler(db, cfg.Scheduler, clients, authoring, lock)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	monitor := worker.NewAccountMonitor(db, clients, 15*time.Minute)
	monitor.Start()

	var provider worker.EmailVerificationProvider
	if p := worker.NewVerificationProvider(cfg.Verification); p != nil {
		provider = p
	}
	verifier := worker.NewEmailVerifier(db, provider, cfg.Verification.RatePerMinute)
	verifier.Start()

	log.Println("Worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down worker...")

	verifier.Stop()
	monitor.Stop()
	scheduler.Stop()
	log.Println("Worker stopped")
}
