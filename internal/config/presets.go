package config

import "fmt"

func preset(edit func(c *Config)) *Config {
	c := DefaultConfig()
	edit(c)
	return c
}

// Presets are complete configurations; a loaded preset replaces every
// default.
var Presets = map[string]*Config{
	"fast": preset(func(c *Config) {
		c.Method = "rk4"
		c.Backend = "closure"
		c.Steps = 50
		c.RelTol = 1e-4
		c.AbsTol = 1e-8
	}),
	"tight": preset(func(c *Config) {
		c.RelTol = 1e-10
		c.AbsTol = 1e-14
		c.MaxSteps = 100000
	}),
	"sensitivity": preset(func(c *Config) {
		c.Sensitivity = true
		c.RelTol = 1e-8
		c.AbsTol = 1e-12
	}),
	"steady": preset(func(c *Config) {
		c.EndTime = 1000
		c.Steps = 1000
		c.HaltOnSteadyState = true
	}),
}

func GetPreset(name string) (*Config, error) {
	p, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	cp := *p
	return &cp, nil
}

func ListPresets() []string {
	return sortedKeys(Presets)
}
