// Package config loads the controller's per-tenant configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one virtual-operator controller.
type Config struct {
	Tenant   TenantConfig   `yaml:"tenant"`
	Store    StoreConfig    `yaml:"store"`
	Bus      BusConfig      `yaml:"bus"`
	Path     PathConfig     `yaml:"path"`
	QoT      QoTConfig      `yaml:"qot"`
	Logging  LoggingConfig  `yaml:"logging"`
	Registry RegistryConfig `yaml:"registry"`
}

// TenantConfig identifies the virtual operator this controller instance serves.
type TenantConfig struct {
	VirtualOperator string `yaml:"virtual_operator"`
}

// StoreConfig configures the resource-store backend.
type StoreConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IOTimeout      time.Duration `yaml:"io_timeout"`
}

// BusConfig configures the message-bus client.
type BusConfig struct {
	BrokerAddress    string        `yaml:"broker_address"`
	ConfigTopic      string        `yaml:"config_topic"`      // default config_<vop>
	MonitoringTopic  string        `yaml:"monitoring_topic"`  // default monitoring_<vop>
	SendTimeout      time.Duration `yaml:"send_timeout"`      // confirmation timeout, default 10s
	RetryMax         int           `yaml:"retry_max"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

// PathConfig configures routing and spectrum assignment defaults.
type PathConfig struct {
	SlotWidthGHz         float64            `yaml:"slot_width_ghz"`
	DefaultSpectrumSlots int                `yaml:"default_spectrum_slots"`
	TotalSlots           int                `yaml:"total_slots"`
	SpectralEfficiency   map[string]float64 `yaml:"spectral_efficiency"` // bit/s/Hz by modulation
}

// QoTConfig configures the persistency-based degradation monitor.
type QoTConfig struct {
	OSNRThresholdDB     float64       `yaml:"osnr_threshold_db"`
	CriticalOSNRDB      float64       `yaml:"critical_osnr_db"`
	BERThreshold        float64       `yaml:"ber_threshold"`
	PersistencySamples  int           `yaml:"persistency_samples"`
	CooldownSec         time.Duration `yaml:"cooldown_sec"`
	TxStepDB            float64       `yaml:"tx_step_db"`
	TxMinDBm            float64       `yaml:"tx_min_dbm"`
	TxMaxDBm            float64       `yaml:"tx_max_dbm"`
	AdjustMode          string        `yaml:"adjust_mode"` // both|source|destination
	MaxReconfigurations int           `yaml:"max_reconfigurations"`
	RecoverySweepPeriod time.Duration `yaml:"recovery_sweep_period"`
	SampleFIFODepth     int           `yaml:"sample_fifo_depth"`
	EfficiencyMarginDB  float64       `yaml:"efficiency_margin_db"`
	EfficiencyAdjust    bool          `yaml:"efficiency_adjust_enabled"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// RegistryConfig configures the agent registry's liveness windows.
type RegistryConfig struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"` // online iff within this window
	ReapInterval     time.Duration `yaml:"reap_interval"`
	EvictAfter       time.Duration `yaml:"evict_after"`
}

// DefaultConfig returns the configuration with every default named in
// spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Tenant: TenantConfig{
			VirtualOperator: "default",
		},
		Store: StoreConfig{
			Host:           "localhost",
			Port:           6379,
			DB:             0,
			ConnectTimeout: 5 * time.Second,
			IOTimeout:      5 * time.Second,
		},
		Bus: BusConfig{
			BrokerAddress:    "localhost:9092",
			SendTimeout:      10 * time.Second,
			RetryMax:         5,
			RetryBackoffBase: 200 * time.Millisecond,
		},
		Path: PathConfig{
			SlotWidthGHz:         12.5,
			DefaultSpectrumSlots: 4,
			TotalSlots:           320,
			SpectralEfficiency: map[string]float64{
				"QPSK":  2,
				"8QAM":  3,
				"16QAM": 4,
			},
		},
		QoT: QoTConfig{
			OSNRThresholdDB:     18,
			CriticalOSNRDB:      15,
			BERThreshold:        1e-3,
			PersistencySamples:  3,
			CooldownSec:         20 * time.Second,
			TxStepDB:            1.0,
			TxMinDBm:            -15,
			TxMaxDBm:            0,
			AdjustMode:          "both",
			MaxReconfigurations: 3,
			RecoverySweepPeriod: 5 * time.Second,
			SampleFIFODepth:     100,
			EfficiencyMarginDB:  3,
			EfficiencyAdjust:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Registry: RegistryConfig{
			HeartbeatTimeout: 60 * time.Second,
			ReapInterval:     5 * time.Minute,
			EvictAfter:       5 * time.Minute,
		},
	}
}

// Load reads a YAML file at path, applying it on top of DefaultConfig, then
// applies environment-variable overrides. An empty path is not an error: the
// defaults (plus env overrides) are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Bus.ConfigTopic == "" {
		cfg.Bus.ConfigTopic = "config_" + cfg.Tenant.VirtualOperator
	}
	if cfg.Bus.MonitoringTopic == "" {
		cfg.Bus.MonitoringTopic = "monitoring_" + cfg.Tenant.VirtualOperator
	}

	return cfg, nil
}

// applyEnvOverrides overlays a small set of environment variables onto cfg.
// Kept deliberately narrow: secrets and deployment-specific addresses are
// the only things worth overriding without editing the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOP_VIRTUAL_OPERATOR"); v != "" {
		cfg.Tenant.VirtualOperator = v
	}
	if v := os.Getenv("VOP_BROKER_ADDRESS"); v != "" {
		cfg.Bus.BrokerAddress = v
	}
	if v := os.Getenv("VOP_STORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("VOP_STORE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = p
		}
	}
	if v := os.Getenv("VOP_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
}
