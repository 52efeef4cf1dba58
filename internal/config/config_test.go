package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	t.Setenv("TIMETABLE_OUTPUT_FORMAT", "parquet")

	path := filepath.Join(t.TempDir(), "timetable.yaml")
	content := []byte(`
output:
  format: jsonl
  path: out/feed.jsonl
daily:
  window_days: 30
store:
  path: /var/lib/timetable/dim.db
daemon:
  daily_time: "03:15"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Output.Format != "parquet" {
		t.Fatalf("expected env override of output.format, got %q", cfg.Output.Format)
	}
	if cfg.Output.Path != "out/feed.jsonl" || cfg.Daily.WindowDays != 30 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Export.BatchSize != 1024 {
		t.Fatalf("expected default batch size, got %d", cfg.Export.BatchSize)
	}
	if h, m := cfg.Daemon.GetDailyTime(); h != 3 || m != 15 {
		t.Fatalf("GetDailyTime() = %d:%d, want 3:15", h, m)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.toml")
	content := []byte(`
[server]
addr = "127.0.0.1:9090"

[export]
batch_size = 64
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load toml: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || cfg.Export.BatchSize != 64 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "typo.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadNoFileInSearchPathsUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	def := Default()
	if *cfg != *def {
		t.Fatalf("Load() = %+v, want defaults %+v", cfg, def)
	}
	if def.Output.Format != "csv" || def.Daily.WindowDays != 100 || def.Store.Path != "timetable.db" {
		t.Fatalf("unexpected defaults: %+v", def)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.yaml")
	if err := os.WriteFile(path, []byte("output:\n  format: xml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for output.format=xml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative window", func(c *Config) { c.Daily.WindowDays = -1 }, true},
		{"zero window", func(c *Config) { c.Daily.WindowDays = 0 }, false},
		{"zero batch", func(c *Config) { c.Export.BatchSize = 0 }, true},
		{"empty store", func(c *Config) { c.Store.Path = "" }, true},
		{"bad daily time", func(c *Config) { c.Daemon.DailyTime = "25:00" }, true},
		{"garbled daily time", func(c *Config) { c.Daemon.DailyTime = "noon" }, true},
		{"unknown format", func(c *Config) { c.Output.Format = "xlsx" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDailyTimeFallback(t *testing.T) {
	c := DaemonConfig{DailyTime: "bogus"}
	if h, m := c.GetDailyTime(); h != 2 || m != 0 {
		t.Errorf("GetDailyTime() = %d:%d, want 2:0", h, m)
	}
}
