// The automation service: evaluates notification rules on incoming
// business events and runs the periodic time sweep for birthdays, payment
// reminders and session reminders.
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

	"github.com/fitpulse/studio-automation/internal/api"
	"github.com/fitpulse/studio-automation/internal/channel"
	"github.com/fitpulse/studio-automation/internal/config"
	"github.com/fitpulse/studio-automation/internal/engine"
	"github.com/fitpulse/studio-automation/internal/pkg/distlock"
	"github.com/fitpulse/studio-automation/internal/render"
	"github.com/fitpulse/studio-automation/internal/rules"
	"github.com/fitpulse/studio-automation/internal/store"
)

const sweepLockKey = "studio:automation:sweep"

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancel()
	log.Println("[Server] Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("[Server] Redis unavailable, sweep lock falls back to PG advisory locks: %v", err)
			redisClient = nil
		}
		pingCancel()
	}

	eng, sweeper := buildEngine(cfg, db, redisClient)

	ruleStore := rules.NewStore(db)
	srv := api.NewServer(eng, ruleStore, sweeper)

	sweeper.Start()
	defer sweeper.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server] Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}

// buildEngine wires the transports, renderer, recorder and sweep lock into
// an engine plus its periodic sweeper.
func buildEngine(cfg *config.Config, db *sql.DB, redisClient *redis.Client) (*engine.Engine, *engine.Sweeper) {
	var emailSender channel.EmailSender
	if cfg.Email.Enabled {
		ses, err := channel.NewSESSender(
			cfg.Email.AccessKey, cfg.Email.SecretKey, cfg.Email.Region,
			cfg.Email.FromName, cfg.Email.FromEmail)
		if err != nil {
			log.Printf("[Server] SES init failed, email channel disabled: %v", err)
		} else {
			emailSender = ses
			log.Printf("[Server] Email channel enabled (SES %s)", cfg.Email.Region)
		}
	}

	var smsSender channel.SMSSender
	if cfg.SMS.Enabled {
		smsSender = channel.NewHTTPSMSSender(cfg.SMS.APIKey, cfg.SMS.BaseURL, cfg.SMS.SenderID, cfg.SMS.Timeout())
		log.Printf("[Server] SMS channel enabled (%s)", cfg.SMS.BaseURL)
	}

	dispatcher := channel.NewDispatcher(emailSender, smsSender,
		cfg.Engine.DispatchWorkers, cfg.Engine.DispatchTimeout())
	renderer := render.New(render.NewTemplateStore(db))
	lock := distlock.NewLock(redisClient, db, sweepLockKey, 2*cfg.Engine.SweepInterval())

	eng := engine.New(
		rules.NewStore(db),
		store.New(db),
		renderer,
		dispatcher,
		rules.NewRecorder(db),
		engine.WithTolerance(cfg.Engine.Tolerance()),
		engine.WithSweepLock(lock),
	)
	return eng, engine.NewSweeper(eng, cfg.Engine.SweepInterval())
}
