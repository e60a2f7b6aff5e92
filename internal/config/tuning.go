package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/rbias/solboard/internal/probe"
)

// TuningConfig holds tunable operational parameters that control system behavior.
// These parameters can be adjusted without changing core application configuration.
type TuningConfig struct {
	Probe  ProbeTuning  `mapstructure:"probe"`
	HTTP   HTTPTuning   `mapstructure:"http"`
	Events EventsTuning `mapstructure:"events"`
}

// ProbeTuning contains cluster health probe parameters.
type ProbeTuning struct {
	// TimeoutSeconds bounds a single getVersion attempt.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// Retries is the number of retries after a failed attempt.
	Retries int `mapstructure:"retries"`

	// CacheTTLSeconds expires cached probe results. Zero keeps them for the
	// life of the process or until refreshed.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// HTTPTuning contains HTTP client and server tuning parameters.
type HTTPTuning struct {
	// MaxIdleConns is the idle connection pool size of the RPC client.
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// MaxIdleConnsPerHost limits idle connections per RPC endpoint.
	MaxIdleConnsPerHost int `mapstructure:"max_idle_conns_per_host"`

	// IdleConnTimeoutSeconds is how long an idle RPC connection is kept.
	IdleConnTimeoutSeconds int `mapstructure:"idle_conn_timeout_seconds"`

	// ShutdownTimeoutSeconds bounds graceful shutdown of the API server.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// EventsTuning contains change stream tuning parameters.
type EventsTuning struct {
	// BufferSize is the per-subscriber buffer of the change stream.
	BufferSize int `mapstructure:"buffer_size"`
}

// defaultTuning returns a TuningConfig with sensible defaults.
// These defaults are used when tuning.yaml is not found or values are missing.
func defaultTuning() *TuningConfig {
	return &TuningConfig{
		Probe: ProbeTuning{
			TimeoutSeconds:  5,
			Retries:         1,
			CacheTTLSeconds: 0,
		},
		HTTP: HTTPTuning{
			MaxIdleConns:           20,
			MaxIdleConnsPerHost:    2,
			IdleConnTimeoutSeconds: 90,
			ShutdownTimeoutSeconds: 10,
		},
		Events: EventsTuning{
			BufferSize: 64,
		},
	}
}

// LoadTuning loads tuning configuration from tuning.yaml in the standard locations.
// If the file is not found, it returns a TuningConfig with default values.
func LoadTuning() (*TuningConfig, error) {
	return LoadTuningWithFile("")
}

// LoadTuningWithFile loads tuning configuration from a specific file path.
// If tuningFile is empty, it searches for tuning.yaml in standard locations.
// If the file is not found, it returns a TuningConfig with default values.
// A separate viper instance keeps tuning apart from the main configuration.
func LoadTuningWithFile(tuningFile string) (*TuningConfig, error) {
	v := viper.New()

	defaults := defaultTuning()
	v.SetDefault("probe.timeout_seconds", defaults.Probe.TimeoutSeconds)
	v.SetDefault("probe.retries", defaults.Probe.Retries)
	v.SetDefault("probe.cache_ttl_seconds", defaults.Probe.CacheTTLSeconds)
	v.SetDefault("http.max_idle_conns", defaults.HTTP.MaxIdleConns)
	v.SetDefault("http.max_idle_conns_per_host", defaults.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.idle_conn_timeout_seconds", defaults.HTTP.IdleConnTimeoutSeconds)
	v.SetDefault("http.shutdown_timeout_seconds", defaults.HTTP.ShutdownTimeoutSeconds)
	v.SetDefault("events.buffer_size", defaults.Events.BufferSize)

	if tuningFile != "" {
		v.SetConfigFile(tuningFile)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.solboard")
		v.AddConfigPath("/etc/solboard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return defaults, nil
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return defaults, nil
		}
		// Parse errors and the like are fatal
		return nil, fmt.Errorf("failed to read tuning config: %w", err)
	}

	var tuning TuningConfig
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tuning config: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	return &tuning, nil
}

// Validate checks tuning parameters for valid ranges.
func (t *TuningConfig) Validate() error {
	// Probe validations
	if t.Probe.TimeoutSeconds < 1 {
		return fmt.Errorf("probe.timeout_seconds must be >= 1, got %d", t.Probe.TimeoutSeconds)
	}
	if t.Probe.Retries < 0 || t.Probe.Retries > 5 {
		return fmt.Errorf("probe.retries must be between 0 and 5, got %d", t.Probe.Retries)
	}
	if t.Probe.CacheTTLSeconds < 0 {
		return fmt.Errorf("probe.cache_ttl_seconds must be >= 0, got %d", t.Probe.CacheTTLSeconds)
	}

	// HTTP validations
	if t.HTTP.MaxIdleConns < 1 {
		return fmt.Errorf("http.max_idle_conns must be >= 1, got %d", t.HTTP.MaxIdleConns)
	}
	if t.HTTP.MaxIdleConnsPerHost < 1 {
		return fmt.Errorf("http.max_idle_conns_per_host must be >= 1, got %d", t.HTTP.MaxIdleConnsPerHost)
	}
	if t.HTTP.MaxIdleConnsPerHost > t.HTTP.MaxIdleConns {
		return fmt.Errorf("http.max_idle_conns_per_host (%d) must be <= max_idle_conns (%d)",
			t.HTTP.MaxIdleConnsPerHost, t.HTTP.MaxIdleConns)
	}
	if t.HTTP.IdleConnTimeoutSeconds < 1 {
		return fmt.Errorf("http.idle_conn_timeout_seconds must be >= 1, got %d", t.HTTP.IdleConnTimeoutSeconds)
	}
	if t.HTTP.ShutdownTimeoutSeconds < 1 {
		return fmt.Errorf("http.shutdown_timeout_seconds must be >= 1, got %d", t.HTTP.ShutdownTimeoutSeconds)
	}

	// Events validations
	if t.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be >= 1, got %d", t.Events.BufferSize)
	}

	return nil
}

// ProbeConfig converts the probe and HTTP settings into a probe.Config.
func (t *TuningConfig) ProbeConfig() probe.Config {
	retries := t.Probe.Retries
	if retries == 0 {
		// probe.Config treats zero as "use the default"
		retries = -1
	}
	return probe.Config{
		Timeout:  time.Duration(t.Probe.TimeoutSeconds) * time.Second,
		Retries:  retries,
		CacheTTL: time.Duration(t.Probe.CacheTTLSeconds) * time.Second,
		HTTPClient: probe.NewHTTPClient(probe.TransportConfig{
			MaxIdleConns:        t.HTTP.MaxIdleConns,
			MaxIdleConnsPerHost: t.HTTP.MaxIdleConnsPerHost,
			IdleConnTimeout:     time.Duration(t.HTTP.IdleConnTimeoutSeconds) * time.Second,
		}),
	}
}

// ShutdownTimeout returns the graceful shutdown bound as a duration.
func (t *TuningConfig) ShutdownTimeout() time.Duration {
	return time.Duration(t.HTTP.ShutdownTimeoutSeconds) * time.Second
}
