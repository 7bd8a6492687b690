// One-shot sweep runner for cron-style deployments: runs a single sweep
// tick against the configured database and prints the result as JSON.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/fitpulse/studio-automation/internal/channel"
	"github.com/fitpulse/studio-automation/internal/config"
	"github.com/fitpulse/studio-automation/internal/engine"
	"github.com/fitpulse/studio-automation/internal/pkg/distlock"
	"github.com/fitpulse/studio-automation/internal/render"
	"github.com/fitpulse/studio-automation/internal/rules"
	"github.com/fitpulse/studio-automation/internal/store"
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var emailSender channel.EmailSender
	if cfg.Email.Enabled {
		ses, err := channel.NewSESSender(
			cfg.Email.AccessKey, cfg.Email.SecretKey, cfg.Email.Region,
			cfg.Email.FromName, cfg.Email.FromEmail)
		if err != nil {
			log.Fatalf("SES init failed: %v", err)
		}
		emailSender = ses
	}
	var smsSender channel.SMSSender
	if cfg.SMS.Enabled {
		smsSender = channel.NewHTTPSMSSender(cfg.SMS.APIKey, cfg.SMS.BaseURL, cfg.SMS.SenderID, cfg.SMS.Timeout())
	}

	dispatcher := channel.NewDispatcher(emailSender, smsSender,
		cfg.Engine.DispatchWorkers, cfg.Engine.DispatchTimeout())
	lock := distlock.NewPGAdvisoryLock(db, "studio:automation:sweep")

	eng := engine.New(
		rules.NewStore(db),
		store.New(db),
		render.New(render.NewTemplateStore(db)),
		dispatcher,
		rules.NewRecorder(db),
		engine.WithTolerance(cfg.Engine.Tolerance()),
		engine.WithSweepLock(lock),
	)

	result, err := eng.RunSweep(ctx)
	out, _ := json.MarshalIndent(result, "", "  ")
	os.Stdout.Write(append(out, '\n'))
	if err != nil {
		log.Fatalf("Sweep finished with persistence errors: %v", err)
	}
}
