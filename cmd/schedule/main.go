// Command schedule runs the main scheduling pass: anniversary and
// campaign pipelines, load balancing, frequency limiting and batch
// persistence.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

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
	initOnly := flag.Bool("init-only", false, "Only initialize database schema")
	testCampaigns := flag.Bool("test-campaigns", false, "Create test campaign data")
	flag.Parse()

	if err := run(*dbPath, *initOnly, *testCampaigns); err != nil {
		fmt.Fprintf(os.Stderr, "schedule: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath string, initOnly, testCampaigns bool) error {
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
	log.Info("Database schema initialized")

	if initOnly {
		return nil
	}

	if testCampaigns {
		count, err := database.SeedTestCampaigns(db, time.Now().UTC())
		if err != nil {
			return err
		}
		log.WithField("contacts", count).Info("Created test campaign data")
		return nil
	}

	rules, err := stateRules(cfg)
	if err != nil {
		return err
	}
	calc := domain.NewWindowCalculator(rules, cfg.Scheduler.PreWindowExclusionDays)

	contacts := repository.NewContactRepository(db, log)
	schedules := repository.NewScheduleRepository(db)
	campaigns := repository.NewCampaignRepository(db)
	checkpoints := repository.NewCheckpointRepository(db)

	scheduler := service.NewScheduler(
		cfg.Scheduler,
		contacts,
		schedules,
		checkpoints,
		service.NewAnniversaryScheduler(cfg.Scheduler, calc, log),
		service.NewCampaignScheduler(cfg.Scheduler, calc, campaigns, log),
		service.NewLoadBalancer(cfg.Scheduler, log),
		service.NewFrequencyLimiter(cfg.Scheduler, schedules, log),
		log,
	)

	return scheduler.Run(context.Background())
}

// stateRules builds the rule table, applying configuration overrides
// on top of the defaults.
func stateRules(cfg *config.Config) (map[string]domain.StateRule, error) {
	rules := domain.DefaultStateRules()
	for state, override := range cfg.StateRules {
		kind, err := domain.RuleKindFromString(override.Type)
		if err != nil {
			return nil, fmt.Errorf("state_rules.%s: %w", state, err)
		}
		rules[state] = domain.StateRule{
			Kind:          kind,
			WindowBefore:  override.WindowBefore,
			WindowAfter:   override.WindowAfter,
			UseMonthStart: override.UseMonthStart,
		}
	}
	return rules, nil
}
