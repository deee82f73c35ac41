package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vision-wallet/go-backend/internal/storage"
)

const (
	DefaultDataDir   = "data"
	DefaultNamespace = "vision"
	DefaultRPCAddr   = "127.0.0.1:8790"
	DefaultRPS       = 5
	DefaultBurst     = 10
)

const (
	envStorageBackend = "VISION_STORAGE_BACKEND"
	envStoragePath    = "VISION_STORAGE_PATH"
	envNamespace      = "VISION_NAMESPACE"
	envRPCAddr        = "VISION_RPC_ADDR"
	envRPCToken       = "VISION_RPC_TOKEN"
	envRateLimit      = "VISION_RPC_RATE_LIMIT_ENABLED"
	envRateLimitRPS   = "VISION_RPC_RATE_LIMIT_RPS"
	envRateLimitBurst = "VISION_RPC_RATE_LIMIT_BURST"
	envMetrics        = "VISION_METRICS_ENABLED"
	envEnv            = "VISION_ENV"
)

type Config struct {
	Storage StorageConfig
	RPC     RPCConfig
	Metrics MetricsConfig
}

type StorageConfig struct {
	Backend   string
	Path      string
	DataDir   string
	Namespace string
}

type RPCConfig struct {
	Addr             string
	Token            string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

type MetricsConfig struct {
	Enabled bool
}

// FileConfig mirrors config.yaml. Pointer fields distinguish "unset" from an
// explicit zero value.
type FileConfig struct {
	Storage FileStorageConfig `yaml:"storage"`
	RPC     FileRPCConfig     `yaml:"rpc"`
	Metrics FileMetricsConfig `yaml:"metrics"`
}

type FileStorageConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	DataDir   string `yaml:"dataDir"`
	Namespace string `yaml:"namespace"`
}

type FileRPCConfig struct {
	Addr             string   `yaml:"addr"`
	Token            string   `yaml:"token"`
	RateLimitEnabled *bool    `yaml:"rateLimitEnabled"`
	RateLimitRPS     *float64 `yaml:"rateLimitRPS"`
	RateLimitBurst   *int     `yaml:"rateLimitBurst"`
}

type FileMetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:   storage.BackendFile,
			DataDir:   DefaultDataDir,
			Namespace: DefaultNamespace,
		},
		RPC: RPCConfig{
			Addr:             DefaultRPCAddr,
			RateLimitEnabled: true,
			RateLimitRPS:     DefaultRPS,
			RateLimitBurst:   DefaultBurst,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configPath, or the first well-known config.yaml found when it is
// empty, then applies VISION_* overrides. A missing default file is not an
// error; a missing explicit file or unparsable YAML is.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	explicit := strings.TrimSpace(configPath) != ""
	if !explicit {
		candidates = []string{
			"go-backend/configs/config.yaml",
			"configs/config.yaml",
		}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// LoadWithDataDir is Load with the data directory forced, as the binaries do
// for their -data-dir flag.
func LoadWithDataDir(configPath, dataDir string) (Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return Config{}, err
	}
	if dir := strings.TrimSpace(dataDir); dir != "" {
		cfg.Storage.DataDir = dir
	}
	return cfg, nil
}

func Merge(dst *Config, src FileConfig) {
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.Storage.DataDir != "" {
		dst.Storage.DataDir = src.Storage.DataDir
	}
	if src.Storage.Namespace != "" {
		dst.Storage.Namespace = src.Storage.Namespace
	}
	if src.RPC.Addr != "" {
		dst.RPC.Addr = src.RPC.Addr
	}
	if src.RPC.Token != "" {
		dst.RPC.Token = src.RPC.Token
	}
	if src.RPC.RateLimitEnabled != nil {
		dst.RPC.RateLimitEnabled = *src.RPC.RateLimitEnabled
	}
	if src.RPC.RateLimitRPS != nil {
		dst.RPC.RateLimitRPS = *src.RPC.RateLimitRPS
	}
	if src.RPC.RateLimitBurst != nil {
		dst.RPC.RateLimitBurst = *src.RPC.RateLimitBurst
	}
	if src.Metrics.Enabled != nil {
		dst.Metrics.Enabled = *src.Metrics.Enabled
	}
}

// ApplyEnvOverrides lets VISION_* variables win over the file. Unparsable
// numeric or boolean values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := envString(envStorageBackend); v != "" {
		cfg.Storage.Backend = v
	}
	if v := envString(envStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := envString(envNamespace); v != "" {
		cfg.Storage.Namespace = v
	}
	if v := envString(envRPCAddr); v != "" {
		cfg.RPC.Addr = v
	}
	if v := envString(envRPCToken); v != "" {
		cfg.RPC.Token = v
	}
	if v, ok := envBool(envRateLimit); ok {
		cfg.RPC.RateLimitEnabled = v
	} else {
		switch strings.ToLower(envString(envEnv)) {
		case "test", "testing":
			cfg.RPC.RateLimitEnabled = false
		}
	}
	if raw := envString(envRateLimitRPS); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			cfg.RPC.RateLimitRPS = parsed
		}
	}
	if raw := envString(envRateLimitBurst); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.RPC.RateLimitBurst = parsed
		}
	}
	if v, ok := envBool(envMetrics); ok {
		cfg.Metrics.Enabled = v
	}
}

func (c Config) Validate() error {
	switch storage.NormalizeBackend(c.Storage.Backend) {
	case storage.BackendMemory, storage.BackendFile, storage.BackendBolt, storage.BackendSQLite:
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if strings.ContainsAny(c.Storage.Namespace, " \t\r\n") {
		return fmt.Errorf("namespace must not contain whitespace: %q", c.Storage.Namespace)
	}
	if c.RPC.RateLimitEnabled && (c.RPC.RateLimitRPS <= 0 || c.RPC.RateLimitBurst <= 0) {
		return errors.New("rate limit requires positive rps and burst")
	}
	return nil
}

// StoreConfig returns the storage factory input for this configuration.
func (c Config) StoreConfig() storage.Config {
	return storage.Config{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		DataDir: filepath.Clean(c.Storage.DataDir),
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string) (bool, bool) {
	raw := envString(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
