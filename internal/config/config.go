package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	defaultProfile     = "default"
	configPathEnv      = "CALLSCORER_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	redisAddrEnv       = "REDIS_ADDR"
	redisPasswordEnv   = "REDIS_PASSWORD"
	redisDBEnv         = "REDIS_DB"
	extractionKeyEnv   = "EXTRACTION_API_KEY"
	extractionModelEnv = "EXTRACTION_MODEL"
	scoringProfileEnv  = "SCORING_PROFILE"
	logLevelEnv        = "LOG_LEVEL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Scoring       ScoringSettings    `yaml:"scoring"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	Storage       StorageConfig      `yaml:"storage"`
	Source        SourceConfig       `yaml:"source"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig defines how analysis runs are triggered and tuned.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression" json:"cronExpression"`
	Timezone       string `yaml:"timezone" json:"timezone"`

	BatchTiers              []int         `yaml:"batchTiers" json:"batchTiers"`
	InitialBatchSize        int           `yaml:"initialBatchSize" json:"initialBatchSize"`
	MinConcurrency          int           `yaml:"minConcurrency" json:"minConcurrency"`
	InitialConcurrency      int           `yaml:"initialConcurrency" json:"initialConcurrency"`
	MaxConcurrency          int           `yaml:"maxConcurrency" json:"maxConcurrency"`
	ConcurrencyStep         int           `yaml:"concurrencyStep" json:"concurrencyStep"`
	BatchScaleUpAfter       int           `yaml:"batchScaleUpAfter" json:"batchScaleUpAfter"`
	ConcurrencyScaleUpAfter int           `yaml:"concurrencyScaleUpAfter" json:"concurrencyScaleUpAfter"`
	RetryAttempts           int           `yaml:"retryAttempts" json:"retryAttempts"`
	RetryBackoff            time.Duration `yaml:"retryBackoff" json:"retryBackoff"`
	InterBatchDelay         time.Duration `yaml:"interBatchDelay" json:"interBatchDelay"`
	CheckpointEveryBatches  int           `yaml:"checkpointEveryBatches" json:"checkpointEveryBatches"`
	AbortAfterFloorFailures int           `yaml:"abortAfterFloorFailures" json:"abortAfterFloorFailures"`

	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ScoringSettings selects the active scoring profile among the known ones.
type ScoringSettings struct {
	Profile  string                   `yaml:"profile"`
	Profiles map[string]ScoringConfig `yaml:"-"`

	raw map[string]yaml.Node
}

// UnmarshalYAML keeps profile bodies as raw nodes so they can be applied on
// top of the built-in profile with the same name.
func (s *ScoringSettings) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Profile  string               `yaml:"profile"`
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if aux.Profile != "" {
		s.Profile = aux.Profile
	}
	s.raw = aux.Profiles
	return nil
}

// Active returns the selected scoring profile.
func (s ScoringSettings) Active() (ScoringConfig, error) {
	name := s.Profile
	if name == "" {
		name = defaultProfile
	}
	p, ok := s.Profiles[name]
	if !ok {
		return ScoringConfig{}, fmt.Errorf("scoring profile %q is not defined", name)
	}
	return p, nil
}

func (s *ScoringSettings) applyRaw() error {
	for name, node := range s.raw {
		base, ok := s.Profiles[name]
		if !ok {
			base = s.Profiles[defaultProfile]
		}
		base = base.Clone()
		if err := node.Decode(&base); err != nil {
			return fmt.Errorf("scoring profile %s: %w", name, err)
		}
		base.Name = name
		if s.Profiles == nil {
			s.Profiles = map[string]ScoringConfig{}
		}
		s.Profiles[name] = base
	}
	s.raw = nil
	return nil
}

// ExtractionConfig defines how to contact the LLM extraction service.
type ExtractionConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
	Temperature  float64       `yaml:"temperature"`
	Pricing      PricingConfig `yaml:"pricing"`
}

// PricingConfig converts token usage into money.
type PricingConfig struct {
	InputPer1K  float64 `yaml:"inputPer1K"`
	OutputPer1K float64 `yaml:"outputPer1K"`
}

// Cost returns the price of the given token counts.
func (p PricingConfig) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}

// StorageConfig selects the progress store backend.
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	DSN    string      `yaml:"dsn"`
	Table  string      `yaml:"table"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig describes the Redis progress store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// SourceConfig describes where work items come from.
type SourceConfig struct {
	Kind    string            `yaml:"kind"`
	Path    string            `yaml:"path"`
	Options map[string]string `yaml:"options"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads YAML configuration (if present), applies environment overrides
// and validates the result. An empty path falls back to CALLSCORER_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of cfg, leaving unspecified settings untouched.
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	return cfg.Scoring.applyRaw()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv(extractionKeyEnv); v != "" {
		c.Extraction.APIKey = v
	}
	if v := os.Getenv(extractionModelEnv); v != "" {
		c.Extraction.Model = v
	}
	if v := os.Getenv(scoringProfileEnv); v != "" {
		c.Scoring.Profile = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(redisDBEnv); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.Redis.DB = db
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: DefaultScheduler(tz),
		Scoring: ScoringSettings{
			Profile:  defaultProfile,
			Profiles: BuiltinProfiles(),
		},
		Extraction: ExtractionConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "",
			Timeout:      60 * time.Second,
			Temperature:  0,
			Pricing:      PricingConfig{InputPer1K: 0.00015, OutputPer1K: 0.0006},
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "data/progress",
			Table:  "call_analyses",
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "callscorer"},
		},
		Source: SourceConfig{Kind: "jsonl", Path: "data/transcripts.jsonl"},
	}
}

// DefaultScheduler returns the built-in adaptive scheduler settings.
func DefaultScheduler(loc *time.Location) SchedulerConfig {
	return SchedulerConfig{
		CronExpression:          "0 2 * * *",
		Timezone:                defaultTimezone,
		BatchTiers:              []int{5, 10, 20, 40},
		InitialBatchSize:        10,
		MinConcurrency:          1,
		InitialConcurrency:      3,
		MaxConcurrency:          8,
		ConcurrencyStep:         1,
		BatchScaleUpAfter:       3,
		ConcurrencyScaleUpAfter: 2,
		RetryAttempts:           3,
		RetryBackoff:            2 * time.Second,
		InterBatchDelay:         time.Second,
		CheckpointEveryBatches:  5,
		location:                loc,
	}
}
