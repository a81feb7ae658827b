package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/tariff"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Horizon != tariff.DefaultHorizon {
		t.Errorf("Horizon = %d, want %d", cfg.Horizon, tariff.DefaultHorizon)
	}
	if cfg.MaxLoadKW != 5.0 {
		t.Errorf("MaxLoadKW = %v, want 5.0", cfg.MaxLoadKW)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath not defaulted")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
horizon: 6
max_load_kw: 3.5
db_path: /tmp/test-loadplan.db
log:
  level: debug
  pretty: true
mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 2
octopus:
  region: H
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Horizon != 6 || cfg.MaxLoadKW != 3.5 {
		t.Errorf("Horizon/MaxLoadKW = %d/%v, want 6/3.5", cfg.Horizon, cfg.MaxLoadKW)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Errorf("Log = %+v, want debug/pretty", cfg.Log)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.Octopus.Region != "H" {
		t.Errorf("Region = %q, want H", cfg.Octopus.Region)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOADPLAN_MAX_LOAD_KW", "7.5")
	t.Setenv("LOADPLAN_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxLoadKW != 7.5 {
		t.Errorf("MaxLoadKW = %v, want env override 7.5", cfg.MaxLoadKW)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env override warn", cfg.Log.Level)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded on a missing explicit config file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  error
	}{
		{"bad capacity", "max_load_kw: -1\n", engine.ErrInvalidMaxLoad},
		{"bad horizon", "horizon: 0\n", nil},
		{"mqtt without broker", "mqtt:\n  enabled: true\n  broker: \"\"\n", nil},
		{"bad qos", "mqtt:\n  qos: 5\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			if err == nil {
				t.Fatal("Load succeeded on invalid config")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
