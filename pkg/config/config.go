package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	BackendREST   = "rest"
	BackendMemory = "memory"
)

var (
	DefaultPath = "~/.stageboard.yaml"

	// Default is the configuration used when no file exists, and the base
	// every file is merged onto
	Default = Config{
		Kind: stage.KindFreelanceApplications,
		Backend: Backend{
			Type:    BackendREST,
			URL:     "http://localhost:8080/api",
			Timeout: 15 * time.Second,
		},
		PageSize: 10,
		Debounce: 500 * time.Millisecond,
		Logging: Logging{
			Level:  "INFO",
			Format: string(logger.FormatConsole),
		},
	}
)

type Config struct {
	// Kind is the entity kind shown when none is given on the command line
	Kind     string        `yaml:"kind" validate:"required"`
	Backend  Backend       `yaml:"backend"`
	PageSize int           `yaml:"pageSize" validate:"gte=1,lte=500"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	Logging  Logging       `yaml:"logging"`
	// Kinds declares stage graphs beyond, or overriding, the builtin ones
	Kinds []Kind `yaml:"kinds,omitempty" validate:"unique=Name,dive"`
}

type Backend struct {
	Type      string        `yaml:"type" validate:"oneof=rest memory"`
	URL       string        `yaml:"url" validate:"required_if=Type rest,omitempty,url"`
	Token     string        `yaml:"token,omitempty"`
	TokenFile string        `yaml:"tokenFile,omitempty"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	// Fixture is the YAML file the memory backend is loaded from
	Fixture string `yaml:"fixture,omitempty" validate:"required_if=Type memory"`
	Watch   bool   `yaml:"watch,omitempty"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `yaml:"format" validate:"oneof=CONSOLE JSON console json"`
	// File receives logs while the TUI owns the terminal; empty means the
	// runtime directory
	File string `yaml:"file,omitempty"`
}

type Kind struct {
	Name   string  `yaml:"name" validate:"required"`
	Stages []Stage `yaml:"stages" validate:"required,min=1,unique=Name,dive"`
}

type Stage struct {
	Name     string   `yaml:"name" validate:"required"`
	Label    string   `yaml:"label,omitempty"`
	Next     []string `yaml:"next,omitempty" validate:"unique"`
	Ordering string   `yaml:"ordering,omitempty" validate:"omitempty,oneof=prepend append"`
}

func NewFromReader(r io.Reader) (*Config, error) {
	c := Default

	bytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read config: %w", err)
	}
	err = yaml.Unmarshal(bytes, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	expandedPath, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expandedPath)
	if os.IsNotExist(err) {
		c := Default
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open config: %w", err)
	}
	defer f.Close()
	return NewFromReader(f)
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}
	// stage graphs are checked by building them
	for _, k := range c.Kinds {
		if _, err := k.Registry(); err != nil {
			return fmt.Errorf("config validation error: %w", err)
		}
	}
	return nil
}

// Registry returns the stage graph of kind, preferring a configured one over
// the builtin one
func (c *Config) Registry(kind string) (*stage.Registry, error) {
	for _, k := range c.Kinds {
		if k.Name == kind {
			return k.Registry()
		}
	}
	return stage.NewBuiltin(kind)
}

// KindNames lists every kind the config knows, builtin ones included
func (c *Config) KindNames() []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range c.Kinds {
		seen[k.Name] = true
		out = append(out, k.Name)
	}
	for _, k := range []string{stage.KindInstitutionCalls, stage.KindFreelanceApplications, stage.KindInternshipApplications} {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

func (k Kind) Registry() (*stage.Registry, error) {
	defs := make([]stage.Definition, len(k.Stages))
	for i, s := range k.Stages {
		next := make([]v1.Stage, len(s.Next))
		for j, n := range s.Next {
			next[j] = v1.Stage(n)
		}
		defs[i] = stage.Definition{
			Name:     v1.Stage(s.Name),
			Label:    s.Label,
			Next:     next,
			Ordering: stage.Ordering(s.Ordering),
		}
	}
	return stage.New(k.Name, defs...)
}
