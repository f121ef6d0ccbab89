package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLIDBPath  string
	CLILevel   string
	CLISource  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath        ResolvedValue `json:"db_path"`
	LogLevel      ResolvedValue `json:"log_level"`
	LogFile       ResolvedValue `json:"log_file"`
	DefaultSource ResolvedValue `json:"default_source"`
	SyncSchedule  ResolvedValue `json:"sync_schedule"`

	// Connectors holds per-provider JSON configs from the config file,
	// keyed by provider name.
	Connectors map[string]string `json:"connectors,omitempty"`
}

type fileConfig struct {
	DBPath        string                            `yaml:"db_path"`
	LogLevel      string                            `yaml:"log_level"`
	LogFile       string                            `yaml:"log_file"`
	DefaultSource string                            `yaml:"default_source"`
	SyncSchedule  string                            `yaml:"sync_schedule"`
	Connectors    map[string]map[string]interface{} `yaml:"connectors"`
}

// envSettings is filled from TIMELINE_* variables.
type envSettings struct {
	DB           string
	DBPath       string `split_words:"true"`
	LogLevel     string `split_words:"true"`
	LogFile      string `split_words:"true"`
	Source       string
	SyncSchedule string `split_words:"true"`
}

const envPrefix = "TIMELINE"

const (
	defaultDBPath   = "~/.timeline/timeline.db"
	defaultLogLevel = "info"
)

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".timeline", "config.yaml")
}

// ResolveConfig layers built-in defaults, the config file, environment and
// CLI flags, in that order, recording where each value came from.
// TIMELINE_DB_PATH wins over TIMELINE_DB when both are set.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:    path,
		DBPath:        ResolvedValue{Value: defaultDBPath, Source: SourceDefault, From: "built-in default"},
		LogLevel:      ResolvedValue{Value: defaultLogLevel, Source: SourceDefault, From: "built-in default"},
		LogFile:       ResolvedValue{Source: SourceUnknown},
		DefaultSource: ResolvedValue{Source: SourceUnknown},
		SyncSchedule:  ResolvedValue{Source: SourceUnknown},
		Connectors:    map[string]string{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.LogFile, cfg.LogFile, SourceConfig, path)
		apply(&out.DefaultSource, cfg.DefaultSource, SourceConfig, path)
		apply(&out.SyncSchedule, cfg.SyncSchedule, SourceConfig, path)

		for provider, raw := range cfg.Connectors {
			js, err := toJSON(raw)
			if err != nil {
				return out, fmt.Errorf("connector %q in %s: %w", provider, path, err)
			}
			out.Connectors[provider] = js
		}
	}

	var env envSettings
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return out, fmt.Errorf("reading environment: %w", err)
	}
	apply(&out.DBPath, env.DB, SourceEnv, envPrefix+"_DB")
	apply(&out.DBPath, env.DBPath, SourceEnv, envPrefix+"_DB_PATH")
	apply(&out.LogLevel, env.LogLevel, SourceEnv, envPrefix+"_LOG_LEVEL")
	apply(&out.LogFile, env.LogFile, SourceEnv, envPrefix+"_LOG_FILE")
	apply(&out.DefaultSource, env.Source, SourceEnv, envPrefix+"_SOURCE")
	apply(&out.SyncSchedule, env.SyncSchedule, SourceEnv, envPrefix+"_SYNC_SCHEDULE")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.LogLevel, opts.CLILevel, SourceCLI, "--log-level")
	apply(&out.DefaultSource, opts.CLISource, SourceCLI, "--source")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.LogFile.Value != "" {
		out.LogFile.Value = expandUserPath(out.LogFile.Value)
	}

	return out, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// toJSON re-encodes a YAML connector block as the JSON config the connect
// package expects.
func toJSON(v map[string]interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
