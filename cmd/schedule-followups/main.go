// Command schedule-followups runs the follow-up pass: it classifies
// each eligible sent message into a behaviour tier and schedules the
// matching follow-up.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/quotewell/email-scheduler/config"
	"github.com/quotewell/email-scheduler/internal/database"
	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/internal/repository"
	"github.com/quotewell/email-scheduler/internal/service"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

func main() {
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	if err := run(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "schedule-followups: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	log := logger.NewLoggerWithLevel(cfg.LogLevel)

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Initialize(db); err != nil {
		return err
	}

	rules := domain.DefaultStateRules()
	for state, override := range cfg.StateRules {
		kind, err := domain.RuleKindFromString(override.Type)
		if err != nil {
			return fmt.Errorf("state_rules.%s: %w", state, err)
		}
		rules[state] = domain.StateRule{
			Kind:          kind,
			WindowBefore:  override.WindowBefore,
			WindowAfter:   override.WindowAfter,
			UseMonthStart: override.UseMonthStart,
		}
	}
	calc := domain.NewWindowCalculator(rules, cfg.Scheduler.PreWindowExclusionDays)

	followups := service.NewFollowupScheduler(
		cfg.Followup,
		calc,
		repository.NewContactRepository(db, log),
		repository.NewCampaignRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewBehaviorRepository(db),
		repository.NewCheckpointRepository(db),
		log,
	)

	return followups.Run(context.Background())
}
