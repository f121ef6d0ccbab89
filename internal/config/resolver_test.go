package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `db_path: ~/.timeline/from-config.db
log_level: debug
default_source: fitbit
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TIMELINE_DB", "~/from-env.db")
	t.Setenv("TIMELINE_SOURCE", "googlefit")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: cfgPath,
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected DB path source cli, got %s", resolved.DBPath.Source)
	}
	if !strings.HasSuffix(resolved.DBPath.Value, "from-cli.db") || strings.HasPrefix(resolved.DBPath.Value, "~") {
		t.Fatalf("expected expanded cli db path, got %q", resolved.DBPath.Value)
	}
	if resolved.DefaultSource.Source != SourceEnv || resolved.DefaultSource.Value != "googlefit" {
		t.Fatalf("expected default source from env, got %+v", resolved.DefaultSource)
	}
	if resolved.LogLevel.Source != SourceConfig || resolved.LogLevel.Value != "debug" {
		t.Fatalf("expected log level from config, got %+v", resolved.LogLevel)
	}
}

func TestResolveConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TIMELINE_DB", "")
	t.Setenv("TIMELINE_DB_PATH", "")
	t.Setenv("TIMELINE_LOG_LEVEL", "")
	t.Setenv("TIMELINE_SOURCE", "")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Source != SourceDefault {
		t.Errorf("expected default db path, got %+v", resolved.DBPath)
	}
	if resolved.LogLevel.Value != "info" {
		t.Errorf("expected info log level, got %+v", resolved.LogLevel)
	}
	if resolved.DefaultSource.Value != "" {
		t.Errorf("expected empty default source, got %+v", resolved.DefaultSource)
	}
}

func TestResolveConfig_Connectors(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `connectors:
  export:
    path: ~/exports/fitbit.json
    source: fitbit
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	raw, ok := resolved.Connectors["export"]
	if !ok {
		t.Fatalf("export connector missing: %+v", resolved.Connectors)
	}
	var cfg map[string]string
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("connector config is not JSON: %v (%s)", err, raw)
	}
	if cfg["path"] != "~/exports/fitbit.json" || cfg["source"] != "fitbit" {
		t.Errorf("unexpected connector config: %v", cfg)
	}
}

func TestResolveConfig_InvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("db_path: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveConfig_LogFileAndSchedule(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `log_file: ~/.timeline/timeline.log
sync_schedule: "@every 1h"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TIMELINE_LOG_FILE", "")
	t.Setenv("TIMELINE_SYNC_SCHEDULE", "*/15 * * * *")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.LogFile.Source != SourceConfig || strings.HasPrefix(resolved.LogFile.Value, "~") {
		t.Errorf("expected expanded log file from config, got %+v", resolved.LogFile)
	}
	if resolved.SyncSchedule.Source != SourceEnv || resolved.SyncSchedule.Value != "*/15 * * * *" {
		t.Errorf("expected schedule from env, got %+v", resolved.SyncSchedule)
	}
	if resolved.SyncSchedule.From != "TIMELINE_SYNC_SCHEDULE" {
		t.Errorf("From = %q", resolved.SyncSchedule.From)
	}
}

func TestResolveConfig_DBPathEnvWinsOverDB(t *testing.T) {
	t.Setenv("TIMELINE_DB", "/tmp/a.db")
	t.Setenv("TIMELINE_DB_PATH", "/tmp/b.db")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Value != "/tmp/b.db" || resolved.DBPath.From != "TIMELINE_DB_PATH" {
		t.Errorf("unexpected db path: %+v", resolved.DBPath)
	}
}
