package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/gridci/internal/archive"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// Image registry backends.
const (
	BackendMemory = "memory"
	BackendDocker = "docker"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// DefinitionPath is an .hcl/.yaml file or a directory of .hcl files.
	DefinitionPath string

	// Trigger of a one-shot run.
	Event      string
	Ref        string
	SHA        string
	Repository string
	Attempt    int

	LogFormat string
	LogLevel  string

	// Capacity bounds concurrently running JobRuns. 0 is unlimited.
	Capacity   int
	StatusPort int
	WorkDir    string

	RegistryBackend string
	// DatabaseURL enables the Postgres run store and tag ledger.
	DatabaseURL string
	// Archive is enabled when Archive.Endpoint is set.
	Archive archive.Config

	NotifyURL       string
	NotifyNamespace string

	SecretsPrefix string
	SecretsDir    string
}

// NewConfig applies defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.DefinitionPath == "" {
		return nil, errors.New("definition path is a required configuration field and cannot be empty")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("capacity must be >= 0, got %d", cfg.Capacity)
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}

	switch cfg.RegistryBackend {
	case "":
		cfg.RegistryBackend = BackendMemory
	case BackendMemory, BackendDocker:
	default:
		return nil, fmt.Errorf("unknown registry backend %q: must be %q or %q", cfg.RegistryBackend, BackendMemory, BackendDocker)
	}

	if cfg.Archive.Endpoint != "" {
		if err := cfg.Archive.Validate(); err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
	}
	if cfg.Event == "" {
		cfg.Event = string(trigger.Push)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	return &cfg, nil
}

// Trigger builds the WorkflowRun for a one-shot run.
func (c *Config) Trigger() (trigger.Run, error) {
	event, err := trigger.ParseEvent(c.Event)
	if err != nil {
		return trigger.Run{}, err
	}
	return trigger.NewRun(event, c.Ref, c.SHA, c.Repository, c.Attempt)
}
