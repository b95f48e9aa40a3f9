package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/linkedin-outreach/internal/ai"
	"github.com/ignite/linkedin-outreach/internal/api"
	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/linkedin"
	"github.com/ignite/linkedin-outreach/internal/pkg/distlock"
	"github.com/ignite/linkedin-outreach/internal/worker"
)

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

	// Redis backs the scheduler lock when configured; Postgres advisory
	// locks otherwise.
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
		log.Printf("AI analyzer enabled (model %s)", cfg.Anthropic.Model)
	} else {
		log.Println("AI analyzer disabled, template messages only")
	}

	// One response cache shared across all provider clients.
	cache := linkedin.NewResponseCache()
	clients := func(accountID string) worker.MessagingClient {
		return linkedin.NewClient(cfg.Unipile, accountID, cache)
	}

	// A disabled analyzer must reach the workers as a nil interface, not a
	// nil *ai.Analyzer.
	var authoring worker.Analyzer
	if analyzer != nil {
		authoring = analyzer
	}

	var scheduler *worker.OutreachScheduler
	if cfg.Scheduler.Enabled {
		lock := distlock.NewLock(redisClient, db, "outreach-scheduler", 2*time.Minute)
		scheduler = worker.NewOutreachScheduler(db, cfg.Scheduler, clients, authoring, lock)
		if err := scheduler.Start(); err != nil {
			if err == worker.ErrLockNotAcquired {
				log.Println("Scheduler lock held elsewhere, running API only")
				scheduler = nil
			} else {
				log.Fatalf("Failed to start scheduler: %v", err)
			}
		}
	} else {
		log.Println("Scheduler disabled by config")
	}

	monitor := worker.NewAccountMonitor(db, clients, 15*time.Minute)
	monitor.Start()

	verifier := worker.NewEmailVerifier(db, verificationProvider(cfg.Verification), cfg.Verification.RatePerMinute)
	verifier.Start()

	var status api.SchedulerStatus
	if scheduler != nil {
		status = scheduler
	}
	server := api.NewServer(cfg.Server, api.NewHandlers(db, analyzer, status))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	verifier.Stop()
	monitor.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}
	log.Println("Stopped")
}

// verificationProvider adapts the nil-typed-pointer pitfall: a disabled
// provider must be a nil interface, not a nil *HTTPVerificationProvider.
func verificationProvider(cfg config.VerificationConfig) worker.EmailVerificationProvider {
	p := worker.NewVerificationProvider(cfg)
	if p == nil {
		return nil
	}
	return p
}
