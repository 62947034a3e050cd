package engine

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/selfheal/driver"
	"github.com/hazyhaar/selfheal/heal"
	"github.com/hazyhaar/selfheal/suggest"
)

// Config holds all engine configuration.
type Config struct {
	DBPath   string         `yaml:"db_path"`
	TraceSQL bool           `yaml:"trace_sql"` // log every statement through the tracing driver
	Patterns PatternsConfig `yaml:"patterns"`
	Suggest  suggest.Config `yaml:"suggest"`
	Heal     heal.Config    `yaml:"heal"`
	Browser  BrowserConfig  `yaml:"browser"`
}

// PatternsConfig tunes pattern scoring.
type PatternsConfig struct {
	InitialWeight float64 `yaml:"initial_weight"`
	WeightStep    float64 `yaml:"weight_step"`
	ContextSize   int     `yaml:"context_size"`
}

// BrowserConfig enables the go-rod browser manager.
type BrowserConfig struct {
	Enabled       bool `yaml:"enabled"`
	driver.Config `yaml:",inline"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "selfheal.db"
	}
	if c.Patterns.InitialWeight == 0 {
		c.Patterns.InitialWeight = 1.0
	}
	if c.Patterns.WeightStep == 0 {
		c.Patterns.WeightStep = 0.1
	}
	if c.Patterns.ContextSize <= 0 {
		c.Patterns.ContextSize = 10
	}
}

// LoadConfigFile reads a YAML config file. ${VAR} references are expanded
// from the environment before parsing, so credentials can stay out of the
// file:
//
//	suggest:
//	  endpoint: https://api.openai.com
//	  api_key: ${OPENAI_API_KEY}
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
