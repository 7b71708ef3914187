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
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("expected default listen address %s, got %s", defaultListenAddress, cfg.ListenAddress)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level %s, got %s", defaultLogLevel, cfg.LogLevel)
	}
	if cfg.ShutdownGracePeriod != defaultShutdownGracePeriod {
		t.Fatalf("expected default grace %s, got %s", defaultShutdownGracePeriod, cfg.ShutdownGracePeriod)
	}
	if cfg.Keys.TTL != defaultKeyTTL {
		t.Fatalf("expected default key ttl %s, got %s", defaultKeyTTL, cfg.Keys.TTL)
	}
	if cfg.Socket.SendBuffer != defaultSendBuffer {
		t.Fatalf("expected default send buffer %d, got %d", defaultSendBuffer, cfg.Socket.SendBuffer)
	}
	if cfg.Auth.SecretEnv != defaultSecretEnv {
		t.Fatalf("expected default secret env %s, got %s", defaultSecretEnv, cfg.Auth.SecretEnv)
	}
	if cfg.Mongo.URI != defaultMongoURI {
		t.Fatalf("expected default mongo uri %s, got %s", defaultMongoURI, cfg.Mongo.URI)
	}
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`
listen_address: "127.0.0.1:7001"
log_level: "debug"
shutdown_grace_period: "5s"
keys:
  ttl: "2m"
  sweep_interval: "10s"
socket:
  send_buffer: 64
  pong_wait: "30s"
mongo:
  uri: "mongodb://db:27017"
  database: "chat"
auth:
  secret_env: "CUSTOM_ENV"
  issuer: "test-issuer"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHATD_LISTEN_ADDRESS", ":6000")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != ":6000" {
		t.Fatalf("expected env override for listen address, got %s", cfg.ListenAddress)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.ShutdownGracePeriod != 5*time.Second {
		t.Fatalf("expected grace 5s, got %s", cfg.ShutdownGracePeriod)
	}
	if cfg.Keys.TTL != 2*time.Minute {
		t.Fatalf("expected key ttl 2m, got %s", cfg.Keys.TTL)
	}
	if cfg.Keys.SweepInterval != 10*time.Second {
		t.Fatalf("expected sweep interval 10s, got %s", cfg.Keys.SweepInterval)
	}
	if cfg.Socket.SendBuffer != 64 {
		t.Fatalf("expected send buffer 64, got %d", cfg.Socket.SendBuffer)
	}
	if cfg.Socket.PongWait != 30*time.Second {
		t.Fatalf("expected pong wait 30s, got %s", cfg.Socket.PongWait)
	}
	if cfg.Mongo.Database != "chat" {
		t.Fatalf("expected mongo database chat, got %s", cfg.Mongo.Database)
	}
	if cfg.Auth.SecretEnv != "CUSTOM_ENV" {
		t.Fatalf("expected secret env CUSTOM_ENV, got %s", cfg.Auth.SecretEnv)
	}
	if cfg.Auth.Issuer != "test-issuer" {
		t.Fatalf("expected issuer test-issuer, got %s", cfg.Auth.Issuer)
	}
}

func TestSecretFetch(t *testing.T) {
	t.Cleanup(func() { getenv = os.Getenv })
	getenv = func(key string) string {
		if key == "CUSTOM_ENV" {
			return "hunter2"
		}
		return ""
	}

	cfg := Config{Auth: AuthConfig{SecretEnv: "CUSTOM_ENV"}}
	secret, err := cfg.Secret()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret != "hunter2" {
		t.Fatalf("expected secret from env, got %s", secret)
	}

	cfg.Auth.SecretEnv = "MISSING_ENV"
	if _, err := cfg.Secret(); err == nil {
		t.Fatal("expected error when secret env is missing")
	}
}
