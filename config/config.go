package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const VERSION = "1.2"

// Config holds every tunable of the scheduling engine. All values are
// overridable through SCHEDULER_* environment variables or an optional
// config file; the defaults are the production values.
type Config struct {
	DBPath    string
	LogLevel  string
	Scheduler SchedulerConfig
	Followup  FollowupConfig

	// StateRules overrides the built-in state-rule table. Keyed by
	// two-letter state code; an entry replaces the default rule for
	// that state entirely.
	StateRules map[string]StateRuleConfig
}

type SchedulerConfig struct {
	SendTime                string
	BatchSize               int
	MaxEmailsPerPeriod      int
	PeriodDays              int
	BirthdayEmailDaysBefore int
	EffectiveDateDaysBefore int
	PreWindowExclusionDays  int
	AEPMonth                int
	AEPDay                  int
	DailySendPercentageCap  float64
	EDDailySoftLimit        int
	EDSmoothingWindowDays   int
	CatchUpSpreadDays       int
	OverageThreshold        float64
}

type FollowupConfig struct {
	SendTime      string
	DaysAfter     int
	LookbackDays  int
	BatchSize     int
	// LegacyYearRoundOnly restricts the exclusion check to year-round
	// states, matching the behaviour of the first production release.
	LegacyYearRoundOnly bool
}

// StateRuleConfig is the file/env representation of a state rule.
// Type is one of "year_round", "birthday_window", "effective_date_window".
type StateRuleConfig struct {
	Type          string
	WindowBefore  int
	WindowAfter   int
	UseMonthStart bool
}

// Load reads configuration from environment variables and an optional
// scheduler.yaml in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", "org-206.sqlite3")
	v.SetDefault("log_level", "info")

	v.SetDefault("scheduler.send_time", "08:30:00")
	v.SetDefault("scheduler.batch_size", 10000)
	v.SetDefault("scheduler.max_emails_per_period", 5)
	v.SetDefault("scheduler.period_days", 30)
	v.SetDefault("scheduler.birthday_email_days_before", 14)
	v.SetDefault("scheduler.effective_date_days_before", 30)
	v.SetDefault("scheduler.pre_window_exclusion_days", 60)
	v.SetDefault("scheduler.aep_month", 9)
	v.SetDefault("scheduler.aep_day", 15)
	v.SetDefault("scheduler.daily_send_percentage_cap", 0.07)
	v.SetDefault("scheduler.ed_daily_soft_limit", 15)
	v.SetDefault("scheduler.ed_smoothing_window_days", 5)
	v.SetDefault("scheduler.catch_up_spread_days", 7)
	v.SetDefault("scheduler.overage_threshold", 1.2)

	v.SetDefault("followup.send_time", "08:30:00")
	v.SetDefault("followup.days_after", 2)
	v.SetDefault("followup.lookback_days", 35)
	v.SetDefault("followup.batch_size", 1000)
	v.SetDefault("followup.legacy_year_round_only", false)

	v.SetConfigName("scheduler")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DBPath:   v.GetString("db_path"),
		LogLevel: v.GetString("log_level"),
		Scheduler: SchedulerConfig{
			SendTime:                v.GetString("scheduler.send_time"),
			BatchSize:               v.GetInt("scheduler.batch_size"),
			MaxEmailsPerPeriod:      v.GetInt("scheduler.max_emails_per_period"),
			PeriodDays:              v.GetInt("scheduler.period_days"),
			BirthdayEmailDaysBefore: v.GetInt("scheduler.birthday_email_days_before"),
			EffectiveDateDaysBefore: v.GetInt("scheduler.effective_date_days_before"),
			PreWindowExclusionDays:  v.GetInt("scheduler.pre_window_exclusion_days"),
			AEPMonth:                v.GetInt("scheduler.aep_month"),
			AEPDay:                  v.GetInt("scheduler.aep_day"),
			DailySendPercentageCap:  v.GetFloat64("scheduler.daily_send_percentage_cap"),
			EDDailySoftLimit:        v.GetInt("scheduler.ed_daily_soft_limit"),
			EDSmoothingWindowDays:   v.GetInt("scheduler.ed_smoothing_window_days"),
			CatchUpSpreadDays:       v.GetInt("scheduler.catch_up_spread_days"),
			OverageThreshold:        v.GetFloat64("scheduler.overage_threshold"),
		},
		Followup: FollowupConfig{
			SendTime:            v.GetString("followup.send_time"),
			DaysAfter:           v.GetInt("followup.days_after"),
			LookbackDays:        v.GetInt("followup.lookback_days"),
			BatchSize:           v.GetInt("followup.batch_size"),
			LegacyYearRoundOnly: v.GetBool("followup.legacy_year_round_only"),
		},
	}

	if v.IsSet("state_rules") {
		if err := v.UnmarshalKey("state_rules", &cfg.StateRules); err != nil {
			return nil, fmt.Errorf("failed to parse state_rules: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration coherence.
func (c *Config) Validate() error {
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	if c.Scheduler.MaxEmailsPerPeriod <= 0 {
		return fmt.Errorf("scheduler.max_emails_per_period must be positive")
	}
	if c.Scheduler.AEPMonth < 1 || c.Scheduler.AEPMonth > 12 {
		return fmt.Errorf("scheduler.aep_month must be in 1..12")
	}
	if c.Scheduler.AEPDay < 1 || c.Scheduler.AEPDay > 31 {
		return fmt.Errorf("scheduler.aep_day must be in 1..31")
	}
	if c.Scheduler.DailySendPercentageCap <= 0 || c.Scheduler.DailySendPercentageCap > 1 {
		return fmt.Errorf("scheduler.daily_send_percentage_cap must be in (0, 1]")
	}
	if c.Scheduler.EDSmoothingWindowDays <= 0 {
		return fmt.Errorf("scheduler.ed_smoothing_window_days must be positive")
	}
	if c.Followup.LookbackDays <= 0 {
		return fmt.Errorf("followup.lookback_days must be positive")
	}
	for state, rule := range c.StateRules {
		switch rule.Type {
		case "year_round", "birthday_window", "effective_date_window":
		default:
			return fmt.Errorf("state_rules.%s: unknown rule type %q", state, rule.Type)
		}
	}
	return nil
}
