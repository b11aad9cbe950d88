package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Queue.Capacity != 100 {
		t.Errorf("Queue.Capacity = %d, want 100", cfg.Queue.Capacity)
	}
	if cfg.Workers.Count != 4 {
		t.Errorf("Workers.Count = %d, want 4", cfg.Workers.Count)
	}
	if cfg.Workers.RenderTimeout != 5*time.Minute {
		t.Errorf("Workers.RenderTimeout = %v, want 5m", cfg.Workers.RenderTimeout)
	}
	if cfg.Files.Retention != 7*24*time.Hour {
		t.Errorf("Files.Retention = %v, want 168h", cfg.Files.Retention)
	}
	if cfg.Poll.InitialInterval != 2*time.Second || cfg.Poll.MaxInterval != 30*time.Second {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %s, want :8080", cfg.Server.Addr)
	}
	if cfg.Queue.Capacity != 100 {
		t.Errorf("Queue.Capacity = %d, want default 100", cfg.Queue.Capacity)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportd.yaml")
	content := `
server:
  addr: ":9090"
queue:
  capacity: 25
workers:
  count: 2
  render_timeout: 30s
logging:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %s, want :9090", cfg.Server.Addr)
	}
	if cfg.Queue.Capacity != 25 {
		t.Errorf("Queue.Capacity = %d, want 25", cfg.Queue.Capacity)
	}
	if cfg.Workers.Count != 2 || cfg.Workers.RenderTimeout != 30*time.Second {
		t.Errorf("Workers = %+v", cfg.Workers)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Workers.CancelGrace != 10*time.Second {
		t.Errorf("Workers.CancelGrace = %v, want default 10s", cfg.Workers.CancelGrace)
	}
	if cfg.Jobs.DefaultPriority != 5 {
		t.Errorf("Jobs.DefaultPriority = %d, want default 5", cfg.Jobs.DefaultPriority)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REPORTD_QUEUE_CAPACITY", "7")
	t.Setenv("REPORTD_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Queue.Capacity != 7 {
		t.Errorf("Queue.Capacity = %d, want 7 from env", cfg.Queue.Capacity)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn from env", cfg.Logging.Level)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [not: valid"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed yaml returned nil error")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportd.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written default error = %v", err)
	}
	if cfg.Queue.Capacity != Default().Queue.Capacity {
		t.Errorf("round-tripped capacity = %d", cfg.Queue.Capacity)
	}
	if cfg.Workers.RenderTimeout != Default().Workers.RenderTimeout {
		t.Errorf("round-tripped render timeout = %v", cfg.Workers.RenderTimeout)
	}
}

func TestEnvKeyReplacerNotNeeded(t *testing.T) {
	// Nested keys use underscores both in yaml paths and env names, so
	// REPORTD_WORKERS_COUNT must resolve workers.count.
	t.Setenv("REPORTD_WORKERS_COUNT", "9")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Workers.Count != 9 {
		t.Errorf("Workers.Count = %d, want 9 from env", cfg.Workers.Count)
	}
}
