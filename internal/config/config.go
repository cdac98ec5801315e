// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures one pipeline run loaded via Viper.
type Config struct {
	Website    string           `mapstructure:"website"`
	Steps      []StepConfig     `mapstructure:"steps"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Events     EventsConfig     `mapstructure:"events"`
	Status     StatusConfig     `mapstructure:"status"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StepConfig describes one step of the pipeline in execution order.
type StepConfig struct {
	// Name selects the step kind: Crawler, Scraper or Parser.
	Name string `mapstructure:"name"`
	// Input is the dataset path produced by an earlier step. Unused by
	// crawler steps, which seed from start_urls.
	Input string `mapstructure:"input"`
	// Output is where the step's collection lands.
	Output  string      `mapstructure:"output"`
	Options StepOptions `mapstructure:"options"`
}

// StepOptions holds the per-step tuning knobs. MaxRetries and
// QualityThreshold are pointers so an explicit zero is distinguishable from
// an absent key; zero retries means the first retryable failure is terminal.
type StepOptions struct {
	StartURLs        []string       `mapstructure:"start_urls"`
	MaxRetries       *int           `mapstructure:"max_retries"`
	BackoffMin       float64        `mapstructure:"backoff_min"`
	BackoffMax       float64        `mapstructure:"backoff_max"`
	BackoffFactor    float64        `mapstructure:"backoff_factor"`
	NumProcesses     int            `mapstructure:"num_processes"`
	CheckpointTime   float64        `mapstructure:"checkpoint_time"`
	CheckpointCount  int            `mapstructure:"checkpoint_count"`
	TempDir          string         `mapstructure:"temp_dir"`
	SleepTime        float64        `mapstructure:"sleep_time"`
	UserAgent        string         `mapstructure:"user_agent"`
	TimeoutSeconds   int            `mapstructure:"timeout_seconds"`
	TranslationMode  bool           `mapstructure:"translation_mode"`
	SourceLang       string         `mapstructure:"source_lang"`
	TargetLang       string         `mapstructure:"target_lang"`
	QualityThreshold *float64       `mapstructure:"quality_threshold"`
	ResumeOnDrift    bool           `mapstructure:"resume_on_drift"`
	Extra            map[string]any `mapstructure:"extra"`
}

const (
	defaultMaxRetries       = 3
	defaultQualityThreshold = 0.3
)

// RetryBudget returns max_retries, applying the default when the key is
// absent.
func (o StepOptions) RetryBudget() int {
	if o.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *o.MaxRetries
}

// QualityCutoff returns quality_threshold, applying the default when the key
// is absent.
func (o StepOptions) QualityCutoff() float64 {
	if o.QualityThreshold == nil {
		return defaultQualityThreshold
	}
	return *o.QualityThreshold
}

// BackoffMinDuration converts the configured seconds to a duration.
func (o StepOptions) BackoffMinDuration() time.Duration {
	return time.Duration(o.BackoffMin * float64(time.Second))
}

// BackoffMaxDuration converts the configured seconds to a duration.
func (o StepOptions) BackoffMaxDuration() time.Duration {
	return time.Duration(o.BackoffMax * float64(time.Second))
}

// SleepDuration converts the configured seconds to a duration.
func (o StepOptions) SleepDuration() time.Duration {
	return time.Duration(o.SleepTime * float64(time.Second))
}

// CheckpointInterval converts the configured seconds to a duration.
func (o StepOptions) CheckpointInterval() time.Duration {
	return time.Duration(o.CheckpointTime * float64(time.Second))
}

// Timeout converts the configured seconds to a duration.
func (o StepOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// StorageConfig selects where raw page content lands.
type StorageConfig struct {
	// Provider is one of local, gcs or memory.
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// CheckpointConfig selects where step progress is recorded.
type CheckpointConfig struct {
	// Provider is one of file, postgres or memory.
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	DSN      string `mapstructure:"dsn"`
}

// EventsConfig controls step lifecycle event publishing.
type EventsConfig struct {
	// Provider is one of none, pubsub or memory.
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// StatusConfig controls the HTTP status server.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyStepDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "data/raw")
	v.SetDefault("checkpoint.provider", "file")
	v.SetDefault("checkpoint.dir", "data/checkpoints")
	v.SetDefault("events.provider", "none")
	v.SetDefault("events.topic", "step-events")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.addr", ":8080")
	v.SetDefault("logging.development", true)
}

func (c *Config) applyStepDefaults() {
	for i := range c.Steps {
		o := &c.Steps[i].Options
		if o.MaxRetries == nil {
			n := defaultMaxRetries
			o.MaxRetries = &n
		}
		if o.BackoffMin == 0 {
			o.BackoffMin = 1
		}
		if o.BackoffMax == 0 {
			o.BackoffMax = 5
		}
		if o.BackoffFactor == 0 {
			o.BackoffFactor = 2
		}
		if o.NumProcesses == 0 {
			o.NumProcesses = 4
		}
		if o.CheckpointCount == 0 && o.CheckpointTime == 0 {
			o.CheckpointCount = 100
		}
		if o.TempDir == "" {
			o.TempDir = "data/tmp"
		}
		if o.TimeoutSeconds == 0 {
			o.TimeoutSeconds = 15
		}
		if o.QualityThreshold == nil {
			q := defaultQualityThreshold
			o.QualityThreshold = &q
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Website == "" {
		return fmt.Errorf("website must be set")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range c.Steps {
		o := step.Options
		switch {
		case step.Name == "":
			return fmt.Errorf("steps[%d].name must be set", i)
		case step.Output == "":
			return fmt.Errorf("steps[%d].output must be set", i)
		case o.RetryBudget() < 0:
			return fmt.Errorf("steps[%d].options.max_retries must be >= 0", i)
		case o.BackoffMin <= 0 || o.BackoffMax < o.BackoffMin:
			return fmt.Errorf("steps[%d].options backoff range [%v, %v] is invalid", i, o.BackoffMin, o.BackoffMax)
		case o.BackoffFactor <= 1:
			return fmt.Errorf("steps[%d].options.backoff_factor must be > 1", i)
		case o.NumProcesses < 1:
			return fmt.Errorf("steps[%d].options.num_processes must be >= 1", i)
		case o.SleepTime < 0:
			return fmt.Errorf("steps[%d].options.sleep_time must be >= 0", i)
		}
	}
	switch c.Storage.Provider {
	case "local", "gcs", "memory":
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
	}
	switch c.Checkpoint.Provider {
	case "file", "postgres", "memory":
	default:
		return fmt.Errorf("checkpoint.provider %q is not supported", c.Checkpoint.Provider)
	}
	if c.Checkpoint.Provider == "postgres" && c.Checkpoint.DSN == "" {
		return fmt.Errorf("checkpoint.dsn must be set for the postgres provider")
	}
	switch c.Events.Provider {
	case "none", "pubsub", "memory":
	default:
		return fmt.Errorf("events.provider %q is not supported", c.Events.Provider)
	}
	if c.Events.Provider == "pubsub" && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id must be set for the pubsub provider")
	}
	return nil
}
