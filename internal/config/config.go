/**
 * @description
 * This file handles configuration management for the billing service.
 * It loads settings from environment variables, providing defaults for every
 * tunable threshold. The reminder window, grace period, and overdue-reminder
 * cadence are deliberately configuration rather than constants: the intended
 * business values are owned by the operator, not the code.
 */
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the billing service.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Port        string `mapstructure:"PORT"`

	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`

	MailAPIURL string `mapstructure:"MAIL_API_URL"`
	MailAPIKey string `mapstructure:"MAIL_API_KEY"`
	MailFrom   string `mapstructure:"MAIL_FROM"`

	BillingCheckSchedule    string `mapstructure:"BILLING_CHECK_SCHEDULE"`
	ReminderWindowHours     int    `mapstructure:"REMINDER_WINDOW_HOURS"`
	GracePeriodHours        int    `mapstructure:"GRACE_PERIOD_HOURS"`
	OverdueReminderWeekdays string `mapstructure:"OVERDUE_REMINDER_WEEKDAYS"`
	MailSendTimeoutSeconds  int    `mapstructure:"MAIL_SEND_TIMEOUT_SECONDS"`
	PacksPerStaff           int    `mapstructure:"PACKS_PER_STAFF"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("PORT", "8086")
	viper.SetDefault("MAIL_FROM", "hello@spexafrica.app")
	viper.SetDefault("BILLING_CHECK_SCHEDULE", "*/3 * * * *") // every 3 minutes
	viper.SetDefault("REMINDER_WINDOW_HOURS", 72)
	viper.SetDefault("GRACE_PERIOD_HOURS", 0) // grace stage disabled by default
	viper.SetDefault("OVERDUE_REMINDER_WEEKDAYS", "1,5")
	viper.SetDefault("MAIL_SEND_TIMEOUT_SECONDS", 10)
	viper.SetDefault("PACKS_PER_STAFF", 2)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("MAIL_API_URL")
	_ = viper.BindEnv("MAIL_API_KEY")
	_ = viper.BindEnv("MAIL_FROM")
	_ = viper.BindEnv("BILLING_CHECK_SCHEDULE")
	_ = viper.BindEnv("REMINDER_WINDOW_HOURS")
	_ = viper.BindEnv("GRACE_PERIOD_HOURS")
	_ = viper.BindEnv("OVERDUE_REMINDER_WEEKDAYS")
	_ = viper.BindEnv("MAIL_SEND_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PACKS_PER_STAFF")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if config.AdminJWTSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET must be set")
	}
	if _, err := parseWeekdays(config.OverdueReminderWeekdays); err != nil {
		return nil, fmt.Errorf("invalid OVERDUE_REMINDER_WEEKDAYS: %w", err)
	}

	return &config, nil
}

// Thresholds returns the evaluator time windows derived from configuration.
// The weekday set was validated at load time.
func (c Config) Thresholds() Thresholds {
	weekdays, _ := parseWeekdays(c.OverdueReminderWeekdays)
	return Thresholds{
		ReminderWindow:          time.Duration(c.ReminderWindowHours) * time.Hour,
		GracePeriod:             time.Duration(c.GracePeriodHours) * time.Hour,
		OverdueReminderWeekdays: weekdays,
	}
}

// Thresholds mirrors the evaluator's tunables; defined here so the app layer
// can consume configuration without re-parsing it.
type Thresholds struct {
	ReminderWindow          time.Duration
	GracePeriod             time.Duration
	OverdueReminderWeekdays map[time.Weekday]bool
}

// MailSendTimeout bounds each individual notification send.
func (c Config) MailSendTimeout() time.Duration {
	return time.Duration(c.MailSendTimeoutSeconds) * time.Second
}

// parseWeekdays parses a comma-separated list of weekday numbers
// (0 = Sunday .. 6 = Saturday) into a lookup set.
func parseWeekdays(s string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a weekday number", part)
		}
		if n < 0 || n > 6 {
			return nil, fmt.Errorf("weekday %d out of range 0-6", n)
		}
		out[time.Weekday(n)] = true
	}
	return out, nil
}
