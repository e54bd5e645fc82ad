// Package config implements global configuration options.
package config

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"gopkg.in/yaml.v3"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/host/store"
)

const (
	// ConsensusClientKindCommittee is the committee consensus client.
	ConsensusClientKindCommittee = "committee"

	// StateMachineKindMerkle is the merkle state machine client.
	StateMachineKindMerkle = "merkle"

	// MetricsModeNone disables metrics.
	MetricsModeNone = "none"
	// MetricsModePush pushes metrics to a Pushgateway.
	MetricsModePush = "push"
)

// GlobalConfig holds the global configuration options.
var GlobalConfig Config

// Config is the top-level configuration structure.
type Config struct {
	Host             HostConfig              `yaml:"host"`
	Storage          StorageConfig           `yaml:"storage"`
	Log              LogConfig               `yaml:"log"`
	Metrics          MetricsConfig           `yaml:"metrics,omitempty"`
	ConsensusClients []ConsensusClientConfig `yaml:"consensus_clients,omitempty"`
}

// HostConfig is the host configuration structure.
type HostConfig struct {
	// StateMachine is the identifier of the local state machine.
	StateMachine string `yaml:"state_machine"`

	// Retry configures the resubmission of messages rejected with a
	// retryable error.
	Retry RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig is the message retry configuration structure.
type RetryConfig struct {
	// MaxElapsedTime is the time after which retrying stops, zero disables
	// retries.
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time"`
	// MaxInterval is the upper bound of the exponential backoff interval.
	MaxInterval time.Duration `yaml:"max_interval"`
}

// StorageConfig is the storage configuration structure.
type StorageConfig struct {
	// Backend is the storage backend (memory, goleveldb, badger).
	Backend string `yaml:"backend"`
	// DataDir is the directory of persistent backends.
	DataDir string `yaml:"data_dir,omitempty"`
}

// LogConfig is the logging configuration structure.
type LogConfig struct {
	// File is the log file, standard output if empty.
	File string `yaml:"file,omitempty"`
	// Format is the log format (logfmt, JSON).
	Format string `yaml:"format"`
	// Level is the default log level.
	Level string `yaml:"level"`
	// Modules are the per-module log levels.
	Modules map[string]string `yaml:"modules,omitempty"`
}

// MetricsConfig is the metrics configuration structure.
type MetricsConfig struct {
	// Mode is the metrics mode (none, push).
	Mode string `yaml:"mode"`
	// Address is the Pushgateway address.
	Address string `yaml:"address,omitempty"`
	// JobName is the push job name.
	JobName string `yaml:"job_name,omitempty"`
	// Labels are the push grouping labels.
	Labels map[string]string `yaml:"labels,omitempty"`
}

// ConsensusClientConfig is the configuration of a consensus client
// implementation registered with the host.
type ConsensusClientConfig struct {
	// ID is the consensus client identifier.
	ID string `yaml:"id"`
	// Kind is the consensus client implementation.
	Kind string `yaml:"kind"`
	// UnbondingPeriod is the maximum allowed staleness of the client.
	UnbondingPeriod time.Duration `yaml:"unbonding_period"`
	// StateMachines are the state machines finalized by the client.
	StateMachines []StateMachineConfig `yaml:"state_machines"`
}

// StateMachineConfig is the configuration of a state machine client.
type StateMachineConfig struct {
	// ID is the state machine identifier.
	ID string `yaml:"id"`
	// Kind is the state machine client implementation.
	Kind string `yaml:"kind"`
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	if err := c.Host.Validate(); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	seen := make(map[api.ConsensusClientID]bool)
	for i := range c.ConsensusClients {
		cc := &c.ConsensusClients[i]
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("consensus_clients[%d]: %w", i, err)
		}
		id, _ := cc.ClientID()
		if seen[id] {
			return fmt.Errorf("consensus_clients[%d]: duplicate id: %s", i, cc.ID)
		}
		seen[id] = true
	}

	return nil
}

// Validate validates the host configuration settings.
func (c *HostConfig) Validate() error {
	if c.StateMachine == "" {
		return fmt.Errorf("missing state_machine")
	}
	if c.Retry.MaxElapsedTime < 0 || c.Retry.MaxInterval < 0 {
		return fmt.Errorf("retry: negative duration")
	}
	return nil
}

// Validate validates the storage configuration settings.
func (c *StorageConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case store.BackendMemory:
	case store.BackendGoLevelDB:
		if c.DataDir == "" {
			return fmt.Errorf("missing data_dir for backend: %s", c.Backend)
		}
	case store.BackendBadger:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	return nil
}

// Validate validates the logging configuration settings.
func (c *LogConfig) Validate() error {
	var f logging.Format
	if err := f.Set(c.Format); err != nil {
		return err
	}
	var l logging.Level
	if err := l.Set(c.Level); err != nil {
		return err
	}
	_, err := logging.ParseModuleLevels(c.Modules)
	return err
}

// Validate validates the metrics configuration settings.
func (c *MetricsConfig) Validate() error {
	switch c.Mode {
	case MetricsModeNone:
	case MetricsModePush:
		if len(c.Address) == 0 {
			return fmt.Errorf("missing address in push mode")
		}
		if len(c.JobName) == 0 {
			return fmt.Errorf("missing job_name in push mode")
		}
	default:
		return fmt.Errorf("unknown metrics mode: %s", c.Mode)
	}
	return nil
}

// ClientID returns the parsed consensus client identifier.
func (c *ConsensusClientConfig) ClientID() (api.ConsensusClientID, error) {
	return api.NewConsensusClientID(c.ID)
}

// Validate validates the consensus client configuration settings.
func (c *ConsensusClientConfig) Validate() error {
	if _, err := c.ClientID(); err != nil {
		return fmt.Errorf("malformed id: %w", err)
	}
	if c.Kind != ConsensusClientKindCommittee {
		return fmt.Errorf("unknown kind: %s", c.Kind)
	}
	if c.UnbondingPeriod <= 0 {
		return fmt.Errorf("unbonding_period must be positive")
	}
	if len(c.StateMachines) == 0 {
		return fmt.Errorf("no state machines")
	}
	for _, sm := range c.StateMachines {
		if sm.ID == "" {
			return fmt.Errorf("state machine without id")
		}
		if sm.Kind != StateMachineKindMerkle {
			return fmt.Errorf("state machine %s: unknown kind: %s", sm.ID, sm.Kind)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		Host: HostConfig{
			Retry: RetryConfig{
				MaxElapsedTime: 0,
				MaxInterval:    10 * time.Second,
			},
		},
		Storage: StorageConfig{
			Backend: store.BackendMemory,
		},
		Log: LogConfig{
			Format:  "logfmt",
			Level:   "warn",
			Modules: map[string]string{},
		},
		Metrics: MetricsConfig{
			Mode:   MetricsModeNone,
			Labels: map[string]string{},
		},
	}
}

// Load loads the configuration from a reader on top of the defaults.
// Unknown fields are rejected.
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return &cfg, nil
}

// InitConfig initializes the global configuration from the given file.
func InitConfig(cfgFile string) error {
	// Read the specified config file and substitute environment variables.
	raw, err := envsubst.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("unable to read config file '%s': %w", cfgFile, err)
	}

	cfg, err := Load(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", cfgFile, err)
	}
	GlobalConfig = *cfg

	// Validate config file.
	return GlobalConfig.Validate()
}

func init() {
	GlobalConfig = DefaultConfig()
}
