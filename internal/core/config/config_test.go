package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("got %+v\nwant %+v", cfg, Defaults())
	}
	if cfg.Port != 1886 || cfg.MetadataCacheSize != 128 || cfg.LifecycleDriver != DriverLog {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tileserver.yaml")
	body := strings.Join([]string{
		"port: 8080",
		"root_path: /srv/maps",
		"log_level: debug",
		"read_timeout: 3s",
		"metrics_enabled: true",
	}, "\n")
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TILESERVER_PORT", "9999")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("env should override file port, got %d", cfg.Port)
	}
	if cfg.RootPath != "/srv/maps" || cfg.ReadTimeout != 3*time.Second || !cfg.MetricsEnabled {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("bare LOG_LEVEL ignored: %q", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TILESERVER_LIFECYCLE_DRIVER", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown driver")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TILESERVER_ROOT_PATH", "/data")
	t.Setenv("TILESERVER_PORT", "not-a-number")
	t.Setenv("TILESERVER_LOG_CONSOLE", "yes")
	t.Setenv("TILESERVER_KAFKA_BROKERS", "a:9092, b:9092,")

	cfg := FromEnv()
	if cfg.RootPath != "/data" || cfg.Port != 1886 || !cfg.LogConsole {
		t.Fatalf("got %+v", cfg)
	}
	if b := cfg.Brokers(); len(b) != 2 || b[0] != "a:9092" || b[1] != "b:9092" {
		t.Fatalf("brokers=%v", b)
	}
}

func TestValidate(t *testing.T) {
	c := Defaults()
	c.Port = 70000
	c.RootPath = " "
	c.LifecycleDriver = DriverKafka
	c.KafkaBrokers = ""
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"port", "root_path", "kafka_brokers"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
