package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("database.driver: got %s, want mysql", cfg.Database.Driver)
	}
	if cfg.Lock.Driver != "memory" {
		t.Errorf("lock.driver: got %s, want memory", cfg.Lock.Driver)
	}
	if cfg.Lock.TTL != 10*time.Second {
		t.Errorf("lock.ttl: got %s, want 10s", cfg.Lock.TTL)
	}
	if cfg.Business.ReminderThreshold != 25 || cfg.Business.DangerThreshold != 3 {
		t.Errorf("thresholds: got %v/%v, want 25/3", cfg.Business.ReminderThreshold, cfg.Business.DangerThreshold)
	}
	if cfg.Business.SweepCron != "@hourly" {
		t.Errorf("business.sweep_cron: got %s", cfg.Business.SweepCron)
	}
	if GlobalConfig != cfg {
		t.Error("GlobalConfig not set")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
database:
  driver: postgres
  port: 5432
lock:
  driver: redis
  ttl: 3s
business:
  reminder_threshold: 30
  danger_threshold: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BREAKFAST_SERVER_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("env override: got port %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.Port != 5432 {
		t.Errorf("database: got %s:%d", cfg.Database.Driver, cfg.Database.Port)
	}
	if cfg.Lock.Driver != "redis" || cfg.Lock.TTL != 3*time.Second {
		t.Errorf("lock: got %s ttl=%s", cfg.Lock.Driver, cfg.Lock.TTL)
	}
	if cfg.Business.ReminderThreshold != 30 || cfg.Business.DangerThreshold != 5 {
		t.Errorf("thresholds: got %v/%v", cfg.Business.ReminderThreshold, cfg.Business.DangerThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "mysql"},
			Lock:     LockConfig{Driver: "memory"},
			Business: BusinessConfig{ReminderThreshold: 25, DangerThreshold: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"postgres", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"sqlite", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"lock none", func(c *Config) { c.Lock.Driver = "none" }, false},
		{"unknown db driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"unknown lock driver", func(c *Config) { c.Lock.Driver = "zookeeper" }, true},
		{"negative credit limit", func(c *Config) { c.Business.DefaultCreditLimit = -1 }, true},
		{"danger above reminder", func(c *Config) { c.Business.DangerThreshold = 30 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
