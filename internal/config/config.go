// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/genc-murat/memwarden/internal/core/models"
)

type Config struct {
	Environment string            `yaml:"environment"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Analyzer    AnalyzerConfig    `yaml:"gc_analyzer"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Pool        PoolConfig        `yaml:"pool"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Pprof       PprofConfig       `yaml:"pprof"`
	Logging     LoggingConfig     `yaml:"logging"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
}

type MonitorConfig struct {
	Enabled          bool          `yaml:"enabled"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	HistorySize      int           `yaml:"history_size"`
	// MemoryCeiling accepts sizes like "2GiB". Empty or "auto" uses total
	// system memory.
	MemoryCeiling string `yaml:"memory_ceiling"`
}

type StrategyConfig struct {
	Active                   string  `yaml:"active"`
	PressureThreshold        float64 `yaml:"pressure_threshold"`
	AggressiveThreshold      float64 `yaml:"aggressive_threshold"`
	ConservativeThreshold    float64 `yaml:"conservative_threshold"`
	ForceThreshold           string  `yaml:"force_threshold"`
	AllocationRateThreshold  string  `yaml:"allocation_rate_threshold"`
	HighPriorityPressure     float64 `yaml:"high_priority_pressure"`
	CriticalPriorityPressure float64 `yaml:"critical_priority_pressure"`
}

type AnalyzerConfig struct {
	Window         time.Duration `yaml:"window"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

type AlertsConfig struct {
	MemoryWarningMB        float64       `yaml:"memory_warning_mb"`
	MemoryCriticalMB       float64       `yaml:"memory_critical_mb"`
	MemoryEmergencyMB      float64       `yaml:"memory_emergency_mb"`
	AllocationWarningMBps  float64       `yaml:"allocation_warning_mbps"`
	AllocationCriticalMBps float64       `yaml:"allocation_critical_mbps"`
	FrequencyWarning       float64       `yaml:"frequency_warning"`
	FrequencyCritical      float64       `yaml:"frequency_critical"`
	Cooldown               time.Duration `yaml:"cooldown"`
	CheckInterval          time.Duration `yaml:"check_interval"`
}

type CoordinatorConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	EvaluationInterval       time.Duration `yaml:"evaluation_interval"`
	MinCollectionInterval    time.Duration `yaml:"min_collection_interval"`
	CollectOnIdle            bool          `yaml:"collect_on_idle"`
	CollectOnSceneTransition bool          `yaml:"collect_on_scene_transition"`
	SettleDelay              time.Duration `yaml:"settle_delay"`
	FinalizerTimeout         time.Duration `yaml:"finalizer_timeout"`
	ReleaseToOS              bool          `yaml:"release_to_os"`
}

type PoolConfig struct {
	InitialSize     int `yaml:"initial_size"`
	MaxSize         int `yaml:"max_size"`
	BuffersPerClass int `yaml:"buffers_per_class"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type PprofConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Output string     `yaml:"output"`
	File   FileConfig `yaml:"file"`
}

type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    string `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type RuntimeConfig struct {
	TickRate time.Duration `yaml:"tick_rate"`
	LockFile string        `yaml:"lock_file"`
	Simulate bool          `yaml:"simulate"`
}

func Default() *Config {
	return &Config{
		Environment: "development",
		Monitor: MonitorConfig{
			Enabled:          true,
			SnapshotInterval: time.Second,
			HistorySize:      300,
			MemoryCeiling:    "auto",
		},
		Strategy: StrategyConfig{
			Active:                   "adaptive",
			PressureThreshold:        0.8,
			AggressiveThreshold:      0.5,
			ConservativeThreshold:    0.9,
			ForceThreshold:           "768MiB",
			AllocationRateThreshold:  "20MiB",
			HighPriorityPressure:     0.9,
			CriticalPriorityPressure: 0.9,
		},
		Analyzer: AnalyzerConfig{
			Window:         10 * time.Second,
			SampleInterval: 250 * time.Millisecond,
		},
		Alerts: AlertsConfig{
			MemoryWarningMB:        500,
			MemoryCriticalMB:       800,
			MemoryEmergencyMB:      1024,
			AllocationWarningMBps:  10,
			AllocationCriticalMBps: 50,
			FrequencyWarning:       3,
			FrequencyCritical:      8,
			Cooldown:               5 * time.Second,
			CheckInterval:          time.Second,
		},
		Coordinator: CoordinatorConfig{
			Enabled:                  true,
			EvaluationInterval:       500 * time.Millisecond,
			MinCollectionInterval:    2 * time.Second,
			CollectOnIdle:            true,
			CollectOnSceneTransition: true,
			SettleDelay:              2 * time.Millisecond,
			FinalizerTimeout:         500 * time.Millisecond,
			ReleaseToOS:              true,
		},
		Pool: PoolConfig{
			InitialSize:     8,
			MaxSize:         64,
			BuffersPerClass: 32,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9108,
			Path:    "/metrics",
		},
		Pprof: PprofConfig{
			Enabled: false,
			Port:    6060,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
			File: FileConfig{
				Path:       "logs/memwarden.log",
				MaxSize:    "100MB",
				MaxAge:     7,
				MaxBackups: 5,
			},
		},
		Runtime: RuntimeConfig{
			TickRate: 50 * time.Millisecond,
			LockFile: "memwarden.lock",
		},
	}
}

// Validate checks the settings that are not re-validated by the component
// constructors.
func (c *Config) Validate() error {
	if _, err := models.ParseStrategy(c.Strategy.Active); err != nil {
		return err
	}
	if _, err := c.Monitor.Ceiling(); err != nil {
		return err
	}
	if _, err := c.Strategy.ForceThresholdBytes(); err != nil {
		return err
	}
	if _, err := c.Strategy.AllocationRateBytes(); err != nil {
		return err
	}
	if _, err := c.Logging.File.MaxSizeMB(); err != nil {
		return err
	}
	if c.Runtime.TickRate <= 0 {
		return models.NewConfigurationError("runtime.tick_rate", "must be positive")
	}
	switch c.Logging.Output {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File.Path == "" {
			return models.NewConfigurationError("logging.file.path", "required when output is file")
		}
	default:
		return models.NewConfigurationError("logging.output", fmt.Sprintf("unknown output %q", c.Logging.Output))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return models.NewConfigurationError("metrics.port", "must be a valid TCP port")
	}
	if c.Pprof.Enabled && (c.Pprof.Port <= 0 || c.Pprof.Port > 65535) {
		return models.NewConfigurationError("pprof.port", "must be a valid TCP port")
	}
	return nil
}

// Ceiling returns the configured ceiling in bytes, or 0 for automatic.
func (m MonitorConfig) Ceiling() (int64, error) {
	v := strings.TrimSpace(m.MemoryCeiling)
	if v == "" || strings.EqualFold(v, "auto") {
		return 0, nil
	}
	return parseSize("monitor.memory_ceiling", v)
}

func (s StrategyConfig) ForceThresholdBytes() (int64, error) {
	return parseSize("strategy.force_threshold", s.ForceThreshold)
}

// AllocationRateBytes returns the rate threshold in bytes per second.
func (s StrategyConfig) AllocationRateBytes() (float64, error) {
	n, err := parseSize("strategy.allocation_rate_threshold", strings.TrimSuffix(s.AllocationRateThreshold, "/s"))
	return float64(n), err
}

// MaxSizeMB converts the rotation size to the megabytes lumberjack expects.
func (f FileConfig) MaxSizeMB() (int, error) {
	if f.MaxSize == "" {
		return 0, nil
	}
	n, err := parseSize("logging.file.max_size", f.MaxSize)
	if err != nil {
		return 0, err
	}
	return int(max(n/(1000*1000), 1)), nil
}

func parseSize(field, v string) (int64, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, models.NewConfigurationError(field, err.Error())
	}
	return int64(n), nil
}

// findProjectRoot walks up from the working directory to the first
// directory holding config/<env>.yaml or config/<env>.yml and returns that
// file's path.
func findProjectRoot(env string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yaml", ".yml"} {
			candidate := filepath.Join(dir, "config", env+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (no config/%s.yaml found)", env)
		}
		dir = parent
	}
}

// LoadConfig reads config/<env>.yaml (or .yml) from the project root.
func LoadConfig(env string) (*Config, error) {
	configPath, err := findProjectRoot(env)
	if err != nil {
		return nil, fmt.Errorf("error finding project root: %w", err)
	}

	config, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	config.Environment = env
	return config, nil
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
