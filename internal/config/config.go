// Package config loads and validates the hours configuration from viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the application configuration as read from viper.
type Config struct {
	User      UserConfig      `mapstructure:"user"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Intervals IntervalsConfig `mapstructure:"intervals"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// UserConfig identifies the acting user.
type UserConfig struct {
	Email    string `mapstructure:"email" validate:"required,email"`
	PersonID string `mapstructure:"person_id"`
	Timezone string `mapstructure:"timezone"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=file sqlite"`
	Path    string `mapstructure:"path" validate:"required"`
}

// LLMConfig configures the completion provider. An empty provider disables
// the AI tiers.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider" validate:"omitempty,oneof=openai azure anthropic"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Endpoint          string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Deployment        string        `mapstructure:"deployment"`
	APIVersion        string        `mapstructure:"api_version"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
	TokensPerMinute   int           `mapstructure:"tokens_per_minute" validate:"gte=0"`
}

// MatchingConfig tunes task matching and routing.
type MatchingConfig struct {
	PatternsFile       string  `mapstructure:"patterns_file"`
	ReviewThreshold    float64 `mapstructure:"review_threshold" validate:"gte=0,lte=1"`
	KeywordConfidence  float64 `mapstructure:"keyword_confidence" validate:"gte=0,lte=1"`
	HighThreshold      float64 `mapstructure:"high_threshold" validate:"gte=0,lte=1"`
	MediumThreshold    float64 `mapstructure:"medium_threshold" validate:"gte=0,lte=1,ltefield=HighThreshold"`
	ReviewZeroDuration bool    `mapstructure:"review_zero_duration"`
}

// DedupConfig tunes the duplicate classifier.
type DedupConfig struct {
	BatchSize          int           `mapstructure:"batch_size" validate:"gt=0"`
	BatchDelay         time.Duration `mapstructure:"batch_delay" validate:"gte=0"`
	DuplicateThreshold float64       `mapstructure:"duplicate_threshold" validate:"gte=0,lte=1"`
}

// EngineConfig tunes the batch runner.
type EngineConfig struct {
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0"`
	MeetingDelay time.Duration `mapstructure:"meeting_delay" validate:"gte=0"`
	LookbackDays int           `mapstructure:"lookback_days" validate:"gt=0"`
}

// IntervalsConfig configures the time tracker.
type IntervalsConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	WorktypeID string `mapstructure:"worktype_id"`
	Billable   bool   `mapstructure:"billable"`
}

// CalendarConfig configures the calendar source.
type CalendarConfig struct {
	Provider        string `mapstructure:"provider" validate:"oneof=msgraph google"`
	TenantID        string `mapstructure:"tenant_id"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// unsetKeys have no default but must still resolve from the environment.
var unsetKeys = []string{
	"user.email", "user.person_id", "user.timezone",
	"llm.provider", "llm.api_key", "llm.model", "llm.endpoint", "llm.deployment",
	"matching.patterns_file",
	"intervals.api_key", "intervals.base_url", "intervals.worktype_id",
	"calendar.tenant_id", "calendar.client_id", "calendar.client_secret", "calendar.credentials_file",
}

// SetDefaults registers default values and environment bindings on v. Call
// it after SetEnvPrefix.
func SetDefaults(v *viper.Viper) {
	for _, key := range unsetKeys {
		_ = v.BindEnv(key)
	}

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", "~/.local/share/hours")

	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.cache_ttl", time.Hour)
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.tokens_per_minute", 90000)
	v.SetDefault("llm.api_version", "2024-02-15-preview")

	v.SetDefault("matching.review_threshold", 0.7)
	v.SetDefault("matching.keyword_confidence", 0.9)
	v.SetDefault("matching.high_threshold", 0.8)
	v.SetDefault("matching.medium_threshold", 0.5)
	v.SetDefault("matching.review_zero_duration", false)

	v.SetDefault("dedup.batch_size", 3)
	v.SetDefault("dedup.batch_delay", 15*time.Second)
	v.SetDefault("dedup.duplicate_threshold", 0.8)

	v.SetDefault("engine.batch_size", 20)
	v.SetDefault("engine.meeting_delay", 500*time.Millisecond)
	v.SetDefault("engine.lookback_days", 7)

	v.SetDefault("intervals.billable", true)

	v.SetDefault("calendar.provider", "msgraph")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load unmarshals and validates the configuration. Secrets not set in the
// config file or HOURS_ variables fall back to their conventional
// environment variables.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Storage.Path = ExpandPath(cfg.Storage.Path)
	cfg.Matching.PatternsFile = ExpandPath(cfg.Matching.PatternsFile)
	cfg.Calendar.CredentialsFile = ExpandPath(cfg.Calendar.CredentialsFile)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	applyEnvFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	fallback := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = v
				return
			}
		}
	}

	fallback(&cfg.Intervals.APIKey, "INTERVALS_API_KEY")
	fallback(&cfg.Calendar.TenantID, "AZURE_AD_APP_TENANT_ID")
	fallback(&cfg.Calendar.ClientID, "AZURE_AD_APP_CLIENT_ID")
	fallback(&cfg.Calendar.ClientSecret, "AZURE_AD_APP_CLIENT_SECRET")
	fallback(&cfg.Calendar.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")

	switch cfg.LLM.Provider {
	case "openai":
		fallback(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "azure":
		fallback(&cfg.LLM.APIKey, "AZURE_OPENAI_API_KEY")
		fallback(&cfg.LLM.Endpoint, "AZURE_OPENAI_ENDPOINT")
		fallback(&cfg.LLM.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case "anthropic":
		fallback(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	if c.LLM.Provider != "" && c.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm.api_key is required for provider %s", common.ErrMissingConfig, c.LLM.Provider)
	}
	if c.LLM.Provider == "azure" && (c.LLM.Endpoint == "" || c.LLM.Deployment == "") {
		return fmt.Errorf("%w: azure needs llm.endpoint and llm.deployment", common.ErrMissingConfig)
	}
	if c.Timezone() == nil {
		return fmt.Errorf("%w: unknown user.timezone %q", common.ErrInvalidConfig, c.User.Timezone)
	}
	return nil
}

// Timezone returns the location time entries are dated in, UTC when unset.
// It returns nil for an unknown zone name.
func (c *Config) Timezone() *time.Location {
	if c.User.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.User.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// RequireTimeTracker reports a missing Intervals key.
func (c *Config) RequireTimeTracker() error {
	if c.Intervals.APIKey == "" {
		return fmt.Errorf("%w: intervals.api_key or INTERVALS_API_KEY", common.ErrMissingConfig)
	}
	return nil
}

// RequireCalendar reports missing calendar credentials.
func (c *Config) RequireCalendar() error {
	switch c.Calendar.Provider {
	case "google":
		if c.Calendar.CredentialsFile == "" {
			return fmt.Errorf("%w: calendar.credentials_file", common.ErrMissingConfig)
		}
	default:
		if c.Calendar.TenantID == "" || c.Calendar.ClientID == "" || c.Calendar.ClientSecret == "" {
			return fmt.Errorf("%w: calendar.tenant_id, calendar.client_id and calendar.client_secret", common.ErrMissingConfig)
		}
	}
	return nil
}
