package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/san-kum/rnsim/internal/sim"
)

const (
	DefaultDataDir  = "./data"
	DefaultStore    = "file"
	DefaultLogLevel = "info"

	// EnvPrefix marks environment variables read by Load, e.g. RNSIM_END_TIME.
	EnvPrefix = "RNSIM_"
)

var ErrUnknownPreset = errors.New("config: unknown preset")

// Config is the persisted form of a run configuration plus the CLI's
// storage and logging settings.
type Config struct {
	EndTime     float64   `koanf:"end_time" yaml:"end_time"`
	Steps       int       `koanf:"steps" yaml:"steps"`
	OutputTimes []float64 `koanf:"output_times" yaml:"output_times,omitempty"`

	Method      string  `koanf:"method" yaml:"method"`
	Backend     string  `koanf:"backend" yaml:"backend"`
	AbsTol      float64 `koanf:"abs_tol" yaml:"abs_tol"`
	RelTol      float64 `koanf:"rel_tol" yaml:"rel_tol"`
	MaxSteps    int     `koanf:"max_steps" yaml:"max_steps"`
	InitialStep float64 `koanf:"initial_step" yaml:"initial_step,omitempty"`
	UseJacobian bool    `koanf:"use_jacobian" yaml:"use_jacobian"`

	Sensitivity    bool               `koanf:"sensitivity" yaml:"sensitivity"`
	SensParameters []string           `koanf:"sens_parameters" yaml:"sens_parameters,omitempty"`
	Adjoint        bool               `koanf:"adjoint" yaml:"adjoint"`
	AdjointWeights map[string]float64 `koanf:"adjoint_weights" yaml:"adjoint_weights,omitempty"`

	HaltOnEvent          bool    `koanf:"halt_on_event" yaml:"halt_on_event"`
	HaltOnSteadyState    bool    `koanf:"halt_on_steady_state" yaml:"halt_on_steady_state"`
	SteadyStateThreshold float64 `koanf:"steady_state_threshold" yaml:"steady_state_threshold"`

	Overrides map[string]float64 `koanf:"overrides" yaml:"overrides,omitempty"`

	DataDir  string `koanf:"data_dir" yaml:"data_dir"`
	Store    string `koanf:"store" yaml:"store"`
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

func DefaultConfig() *Config {
	s := sim.DefaultSettings()
	return &Config{
		EndTime:              s.EndTime,
		Steps:                s.Steps,
		Method:               s.Method,
		Backend:              s.Backend,
		AbsTol:               s.AbsTol,
		RelTol:               s.RelTol,
		MaxSteps:             s.MaxSteps,
		UseJacobian:          s.UseJacobian,
		SteadyStateThreshold: s.SteadyStateThreshold,
		DataDir:              DefaultDataDir,
		Store:                DefaultStore,
		LogLevel:             DefaultLogLevel,
	}
}

// flagKeys maps CLI flag names that differ from their config key.
var flagKeys = map[string]string{
	"time":             "end_time",
	"sens":             "sensitivity",
	"sens-params":      "sens_parameters",
	"jacobian":         "use_jacobian",
	"halt-steady":      "halt_on_steady_state",
	"halt-event":       "halt_on_event",
	"steady-threshold": "steady_state_threshold",
	"data":             "data_dir",
}

// Load reads configuration from defaults, the YAML file at path (skipped
// when empty), RNSIM_* environment variables and the changed flags of
// flags, each layer overriding the previous one.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return LoadWithPreset(path, "", flags)
}

// LoadWithPreset is Load with a named preset layered between the defaults
// and the file.
func LoadWithPreset(path, preset string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultConfig().toMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if preset != "" {
		p, err := GetPreset(preset)
		if err != nil {
			return nil, err
		}
		if err := k.Load(confmap.Provider(p.toMap(), "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load preset %s: %w", preset, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// RNSIM_END_TIME -> end_time
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.SensParameters = splitList(cfg.SensParameters)
	return &cfg, nil
}

// splitList expands comma-separated entries, the form environment
// variables carry lists in.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func Save(path string, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Settings converts the run part of c into simulation settings.
func (c *Config) Settings() sim.Settings {
	return sim.Settings{
		EndTime:              c.EndTime,
		Steps:                c.Steps,
		OutputTimes:          append([]float64(nil), c.OutputTimes...),
		Method:               c.Method,
		Backend:              c.Backend,
		AbsTol:               c.AbsTol,
		RelTol:               c.RelTol,
		MaxSteps:             c.MaxSteps,
		InitialStep:          c.InitialStep,
		UseJacobian:          c.UseJacobian,
		Sensitivity:          c.Sensitivity,
		SensParameters:       append([]string(nil), c.SensParameters...),
		Adjoint:              c.Adjoint,
		AdjointWeights:       copyMap(c.AdjointWeights),
		HaltOnEvent:          c.HaltOnEvent,
		HaltOnSteadyState:    c.HaltOnSteadyState,
		SteadyStateThreshold: c.SteadyStateThreshold,
		Overrides:            copyMap(c.Overrides),
	}
}

// toMap flattens c into koanf keys. Empty collections are left out so a
// layer built from c never clears lists set by an earlier one.
func (c *Config) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"end_time":               c.EndTime,
		"steps":                  c.Steps,
		"method":                 c.Method,
		"backend":                c.Backend,
		"abs_tol":                c.AbsTol,
		"rel_tol":                c.RelTol,
		"max_steps":              c.MaxSteps,
		"initial_step":           c.InitialStep,
		"use_jacobian":           c.UseJacobian,
		"sensitivity":            c.Sensitivity,
		"adjoint":                c.Adjoint,
		"halt_on_event":          c.HaltOnEvent,
		"halt_on_steady_state":   c.HaltOnSteadyState,
		"steady_state_threshold": c.SteadyStateThreshold,
		"data_dir":               c.DataDir,
		"store":                  c.Store,
		"log_level":              c.LogLevel,
	}
	if len(c.OutputTimes) > 0 {
		m["output_times"] = append([]float64(nil), c.OutputTimes...)
	}
	if len(c.SensParameters) > 0 {
		m["sens_parameters"] = append([]string(nil), c.SensParameters...)
	}
	// nested maps use the key delimiter
	for name, w := range c.AdjointWeights {
		m["adjoint_weights."+name] = w
	}
	for name, v := range c.Overrides {
		m["overrides."+name] = v
	}
	return m
}

func copyMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]*Config) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
