package internal

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadConfigDefaults tests that the default values are applied correctly
// when loading a minimal config.
func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "sink:\n  url: https://poke.example/v1/inbound\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Webhook.Path != "/webhooks/github" {
		t.Fatalf("expected default webhook path, got %q", cfg.Webhook.Path)
	}
	if cfg.Queue.Driver != "gochannel" {
		t.Fatalf("expected default queue driver, got %q", cfg.Queue.Driver)
	}
	if cfg.Queue.Buffer != 64 {
		t.Fatalf("expected default queue buffer, got %d", cfg.Queue.Buffer)
	}
	if cfg.Scheduler.MaxAttempts != 5 {
		t.Fatalf("expected default max attempts, got %d", cfg.Scheduler.MaxAttempts)
	}
	if cfg.Scheduler.LaneDepth != 64 {
		t.Fatalf("expected default lane depth, got %d", cfg.Scheduler.LaneDepth)
	}
	if cfg.Scheduler.DedupTTLMS != 24*60*60*1000 {
		t.Fatalf("expected default dedup ttl, got %d", cfg.Scheduler.DedupTTLMS)
	}
	if cfg.DeadLetter.Capacity != 100 {
		t.Fatalf("expected default dead letter capacity, got %d", cfg.DeadLetter.Capacity)
	}
	if cfg.DeadLetter.River.Kind != "pokebridge.redeliver" {
		t.Fatalf("expected default river kind, got %q", cfg.DeadLetter.River.Kind)
	}
}

// TestLoadConfigExpandsEnv tests that ${VAR} references are expanded from the
// environment before parsing.
func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("POKE_API_KEY", "from-env")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "webhook:\n  secret: ${WEBHOOK_SECRET}\nsink:\n  url: https://poke.example/v1/inbound\n  api_key: ${POKE_API_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Sink.APIKey != "from-env" {
		t.Fatalf("expected expanded api key, got %q", cfg.Sink.APIKey)
	}
	if cfg.Webhook.Secret != "hook-secret" {
		t.Fatalf("expected expanded secret, got %q", cfg.Webhook.Secret)
	}
}

// TestLoadConfigGoChannelBufferClamp tests that the gochannel buffer is
// raised to at least the lane depth, so Enqueue cannot block on a full
// subscriber channel below the lane depth bound.
func TestLoadConfigGoChannelBufferClamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "sink:\n  url: https://poke.example/v1/inbound\nscheduler:\n  lane_depth: 128\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Queue.Buffer != 128 {
		t.Fatalf("expected buffer clamped to lane depth, got %d", cfg.Queue.Buffer)
	}

	content = "sink:\n  url: https://poke.example/v1/inbound\nqueue:\n  driver: amqp\n  buffer: 8\nscheduler:\n  lane_depth: 128\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Queue.Buffer != 8 {
		t.Fatalf("expected broker driver buffer untouched, got %d", cfg.Queue.Buffer)
	}
}

// TestLoadConfigMissingSinkURL tests that a config without a sink URL is
// rejected.
func TestLoadConfigMissingSinkURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing sink url")
	}
}

// TestLoadConfigRiverRequiresDSN tests that enabling the durable dead-letter
// queue without a DSN is rejected.
func TestLoadConfigRiverRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "sink:\n  url: https://poke.example/v1/inbound\ndead_letter:\n  river:\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for river without dsn")
	}
}
