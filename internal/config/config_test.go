package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vision-wallet/go-backend/internal/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != storage.BackendFile || cfg.Storage.Namespace != DefaultNamespace {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.RPC.Addr != DefaultRPCAddr || cfg.RPC.RateLimitRPS != DefaultRPS || cfg.RPC.RateLimitBurst != DefaultBurst {
		t.Fatalf("unexpected rpc defaults: %+v", cfg.RPC)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should be enabled by default")
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: bolt
  dataDir: /var/lib/vision
  namespace: staging
rpc:
  addr: 127.0.0.1:9000
  rateLimitEnabled: false
  rateLimitBurst: 3
metrics:
  enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != storage.BackendBolt || cfg.Storage.Namespace != "staging" {
		t.Fatalf("storage not merged: %+v", cfg.Storage)
	}
	if cfg.RPC.Addr != "127.0.0.1:9000" || cfg.RPC.RateLimitEnabled || cfg.RPC.RateLimitBurst != 3 {
		t.Fatalf("rpc not merged: %+v", cfg.RPC)
	}
	if cfg.RPC.RateLimitRPS != DefaultRPS {
		t.Fatalf("unset rps should keep default, got %v", cfg.RPC.RateLimitRPS)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics should be disabled by file")
	}
	got := cfg.StoreConfig().ResolvedPath()
	if got != filepath.Join("/var/lib/vision", "keystore.db") {
		t.Fatalf("unexpected resolved path %s", got)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: bolt\nrpc:\n  token: from-file\n")
	t.Setenv(envStorageBackend, "sqlite")
	t.Setenv(envRPCToken, "from-env")
	t.Setenv(envRateLimitRPS, "12.5")
	t.Setenv(envRateLimitBurst, "not-a-number")
	t.Setenv(envMetrics, "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != storage.BackendSQLite {
		t.Fatalf("expected sqlite backend, got %s", cfg.Storage.Backend)
	}
	if cfg.RPC.Token != "from-env" {
		t.Fatalf("expected env token, got %q", cfg.RPC.Token)
	}
	if cfg.RPC.RateLimitRPS != 12.5 {
		t.Fatalf("expected rps override, got %v", cfg.RPC.RateLimitRPS)
	}
	if cfg.RPC.RateLimitBurst != DefaultBurst {
		t.Fatalf("invalid burst must be ignored, got %d", cfg.RPC.RateLimitBurst)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics env override ignored")
	}
}

func TestTestEnvDisablesRateLimitUnlessExplicit(t *testing.T) {
	t.Setenv(envEnv, "test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.RateLimitEnabled {
		t.Fatal("test environment should disable rate limiting")
	}

	t.Setenv(envRateLimit, "true")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RPC.RateLimitEnabled {
		t.Fatal("explicit setting must win over VISION_ENV")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	if _, err := Load(writeConfig(t, "storage: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
	_, err := Load(writeConfig(t, "storage:\n  backend: etcd\n"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
	if _, err := Load(writeConfig(t, "storage:\n  namespace: \"a b\"\n")); err == nil {
		t.Fatal("expected namespace validation error")
	}
}

func TestLoadWithDataDirOverridesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWithDataDir("", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.StoreConfig().ResolvedPath(); got != filepath.Join(dir, "keystore.json") {
		t.Fatalf("unexpected path %s", got)
	}
}
