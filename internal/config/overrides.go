package config

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/genc-murat/memwarden/internal/core/models"
)

type setter func(c *Config, path string, v gjson.Result) error

// overridable lists the keys ApplyOverrides accepts, as dotted paths.
var overridable = map[string]setter{
	"environment":                         setString(func(c *Config) *string { return &c.Environment }),
	"monitor.enabled":                     setBool(func(c *Config) *bool { return &c.Monitor.Enabled }),
	"monitor.snapshot_interval":           setDuration(func(c *Config) *time.Duration { return &c.Monitor.SnapshotInterval }),
	"monitor.history_size":                setInt(func(c *Config) *int { return &c.Monitor.HistorySize }),
	"monitor.memory_ceiling":              setString(func(c *Config) *string { return &c.Monitor.MemoryCeiling }),
	"strategy.active":                     setString(func(c *Config) *string { return &c.Strategy.Active }),
	"strategy.pressure_threshold":         setFloat(func(c *Config) *float64 { return &c.Strategy.PressureThreshold }),
	"strategy.aggressive_threshold":       setFloat(func(c *Config) *float64 { return &c.Strategy.AggressiveThreshold }),
	"strategy.conservative_threshold":     setFloat(func(c *Config) *float64 { return &c.Strategy.ConservativeThreshold }),
	"strategy.force_threshold":            setString(func(c *Config) *string { return &c.Strategy.ForceThreshold }),
	"strategy.allocation_rate_threshold":  setString(func(c *Config) *string { return &c.Strategy.AllocationRateThreshold }),
	"alerts.memory_warning_mb":            setFloat(func(c *Config) *float64 { return &c.Alerts.MemoryWarningMB }),
	"alerts.memory_critical_mb":           setFloat(func(c *Config) *float64 { return &c.Alerts.MemoryCriticalMB }),
	"alerts.memory_emergency_mb":          setFloat(func(c *Config) *float64 { return &c.Alerts.MemoryEmergencyMB }),
	"alerts.cooldown":                     setDuration(func(c *Config) *time.Duration { return &c.Alerts.Cooldown }),
	"alerts.check_interval":               setDuration(func(c *Config) *time.Duration { return &c.Alerts.CheckInterval }),
	"coordinator.enabled":                 setBool(func(c *Config) *bool { return &c.Coordinator.Enabled }),
	"coordinator.evaluation_interval":     setDuration(func(c *Config) *time.Duration { return &c.Coordinator.EvaluationInterval }),
	"coordinator.min_collection_interval": setDuration(func(c *Config) *time.Duration { return &c.Coordinator.MinCollectionInterval }),
	"metrics.enabled":                     setBool(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"metrics.port":                        setInt(func(c *Config) *int { return &c.Metrics.Port }),
	"pprof.enabled":                       setBool(func(c *Config) *bool { return &c.Pprof.Enabled }),
	"logging.level":                       setString(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":                      setString(func(c *Config) *string { return &c.Logging.Format }),
	"logging.output":                      setString(func(c *Config) *string { return &c.Logging.Output }),
	"runtime.tick_rate":                   setDuration(func(c *Config) *time.Duration { return &c.Runtime.TickRate }),
	"runtime.simulate":                    setBool(func(c *Config) *bool { return &c.Runtime.Simulate }),
}

// ApplyOverrides patches cfg from a JSON document such as
// {"strategy":{"active":"aggressive"}}. Unknown keys are rejected and the
// patched config is validated.
func ApplyOverrides(cfg *Config, doc string) error {
	if doc == "" {
		return nil
	}
	if !gjson.Valid(doc) {
		return models.NewConfigurationError("overrides", "not a valid JSON document")
	}

	var err error
	walk("", gjson.Parse(doc), func(path string, value gjson.Result) bool {
		set, ok := overridable[path]
		if !ok {
			err = models.NewConfigurationError(path, "not an overridable key")
			return false
		}
		if e := set(cfg, path, value); e != nil {
			err = e
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func walk(prefix string, node gjson.Result, visit func(string, gjson.Result) bool) bool {
	cont := true
	node.ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		if prefix != "" {
			path = prefix + "." + path
		}
		if value.IsObject() {
			cont = walk(path, value, visit)
		} else {
			cont = visit(path, value)
		}
		return cont
	})
	return cont
}

func setString(field func(*Config) *string) setter {
	return func(c *Config, path string, v gjson.Result) error {
		if v.Type != gjson.String {
			return models.NewConfigurationError(path, "expected a string")
		}
		*field(c) = v.String()
		return nil
	}
}

func setBool(field func(*Config) *bool) setter {
	return func(c *Config, path string, v gjson.Result) error {
		if !v.IsBool() {
			return models.NewConfigurationError(path, "expected a boolean")
		}
		*field(c) = v.Bool()
		return nil
	}
}

func setInt(field func(*Config) *int) setter {
	return func(c *Config, path string, v gjson.Result) error {
		if v.Type != gjson.Number {
			return models.NewConfigurationError(path, "expected a number")
		}
		*field(c) = int(v.Int())
		return nil
	}
}

func setFloat(field func(*Config) *float64) setter {
	return func(c *Config, path string, v gjson.Result) error {
		if v.Type != gjson.Number {
			return models.NewConfigurationError(path, "expected a number")
		}
		*field(c) = v.Float()
		return nil
	}
}

// setDuration accepts "250ms" style strings or a number of seconds.
func setDuration(field func(*Config) *time.Duration) setter {
	return func(c *Config, path string, v gjson.Result) error {
		switch v.Type {
		case gjson.Number:
			*field(c) = time.Duration(v.Float() * float64(time.Second))
			return nil
		case gjson.String:
			d, err := time.ParseDuration(v.String())
			if err != nil {
				return models.NewConfigurationError(path, fmt.Sprintf("bad duration: %v", err))
			}
			*field(c) = d
			return nil
		default:
			return models.NewConfigurationError(path, "expected a duration")
		}
	}
}
