// Package config loads and validates reconciliation configuration from a
// YAML file with environment-variable overrides. Secrets (the developer
// token) normally arrive via environment rather than the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// such as "500ms" or "1s". Bare integers are read as seconds.
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Environment variable names that override file values.
const (
	EnvEndpoint           = "LISTINGSYNC_ENDPOINT"
	EnvDeveloperToken     = "LISTINGSYNC_DEVELOPER_TOKEN"
	EnvCustomerID         = "LISTINGSYNC_CUSTOMER_ID"
	EnvLoginCustomerID    = "LISTINGSYNC_LOGIN_CUSTOMER_ID"
	EnvCheckpointBackend  = "LISTINGSYNC_CHECKPOINT_BACKEND"
	EnvCheckpointPath     = "LISTINGSYNC_CHECKPOINT_PATH"
	EnvCheckpointBucket   = "LISTINGSYNC_CHECKPOINT_BUCKET"
	EnvCheckpointKey      = "LISTINGSYNC_CHECKPOINT_KEY"
)

// Checkpoint backend names accepted in Checkpoint.Backend.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config is the full reconciliation configuration.
type Config struct {
	Service    Service    `yaml:"service"`
	Reconcile  Reconcile  `yaml:"reconcile"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
}

// Service identifies the remote advertising service account.
type Service struct {
	// Endpoint overrides the service endpoint; empty uses the default
	Endpoint string `yaml:"endpoint"`

	// DeveloperToken authenticates the API caller
	DeveloperToken string `yaml:"developer_token"`

	// CustomerID is the operating account
	CustomerID string `yaml:"customer_id"`

	// LoginCustomerID is the manager account when operating under one
	LoginCustomerID string `yaml:"login_customer_id"`
}

// Reconcile tunes run behavior.
type Reconcile struct {
	// MaxAttempts bounds submissions per batch, including the first
	MaxAttempts int `yaml:"max_attempts"`

	// RequestDelay is the pause between successful batch submissions
	RequestDelay Duration `yaml:"request_delay"`

	// UnitDelay is the pause between units
	UnitDelay Duration `yaml:"unit_delay"`

	// Timeout bounds each remote call
	Timeout Duration `yaml:"timeout"`

	// CheckpointInterval is the number of processed units between saves
	CheckpointInterval int `yaml:"checkpoint_interval"`

	// DefaultBidMicros is the bid applied to includes without one
	DefaultBidMicros int64 `yaml:"default_bid_micros"`
}

// Checkpoint selects and parameterizes the checkpoint store.
type Checkpoint struct {
	// Backend is one of none, memory, file, sqlite, s3
	Backend string `yaml:"backend"`

	// Path is the file or database path for file/sqlite backends
	Path string `yaml:"path"`

	// Bucket and Key locate the checkpoint object for the s3 backend
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

// Default returns a configuration with the documented defaults applied.
func Default() *Config {
	return &Config{
		Reconcile: Reconcile{
			MaxAttempts:        3,
			RequestDelay:       Duration(500 * time.Millisecond),
			Timeout:            Duration(30 * time.Second),
			CheckpointInterval: 25,
			DefaultBidMicros:   200_000,
		},
		Checkpoint: Checkpoint{
			Backend: BackendNone,
		},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. Unset file fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// only, for callers without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setIfPresent(EnvEndpoint, &c.Service.Endpoint)
	setIfPresent(EnvDeveloperToken, &c.Service.DeveloperToken)
	setIfPresent(EnvCustomerID, &c.Service.CustomerID)
	setIfPresent(EnvLoginCustomerID, &c.Service.LoginCustomerID)
	setIfPresent(EnvCheckpointBackend, &c.Checkpoint.Backend)
	setIfPresent(EnvCheckpointPath, &c.Checkpoint.Path)
	setIfPresent(EnvCheckpointBucket, &c.Checkpoint.Bucket)
	setIfPresent(EnvCheckpointKey, &c.Checkpoint.Key)
}

func setIfPresent(env string, dst *string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Service.DeveloperToken == "" {
		return fmt.Errorf("config: service.developer_token is required")
	}
	if c.Service.CustomerID == "" {
		return fmt.Errorf("config: service.customer_id is required")
	}
	if c.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("config: reconcile.max_attempts must be at least 1, got %d",
			c.Reconcile.MaxAttempts)
	}
	if c.Reconcile.CheckpointInterval < 1 {
		return fmt.Errorf("config: reconcile.checkpoint_interval must be at least 1, got %d",
			c.Reconcile.CheckpointInterval)
	}
	if c.Reconcile.DefaultBidMicros < 0 {
		return fmt.Errorf("config: reconcile.default_bid_micros must not be negative")
	}

	switch c.Checkpoint.Backend {
	case BackendNone, BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("config: checkpoint.path is required for backend %q",
				c.Checkpoint.Backend)
		}
	case BackendS3:
		if c.Checkpoint.Bucket == "" || c.Checkpoint.Key == "" {
			return fmt.Errorf("config: checkpoint.bucket and checkpoint.key are required for backend %q",
				c.Checkpoint.Backend)
		}
	default:
		return fmt.Errorf("config: unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	return nil
}
