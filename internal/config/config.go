package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the relevar engine and server configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Engine   EngineConfig   `yaml:"engine"`
	Store    StoreConfig    `yaml:"store"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EngineConfig holds retrieval, ingestion and scoring settings.
type EngineConfig struct {
	// Dimension is the embedding vector length. Indexed items and the
	// degraded fallback generator must agree on it.
	Dimension    int `yaml:"dimension"`
	Workers      int `yaml:"workers"`
	ChunkSize    int `yaml:"chunk_size"`
	MaxBatchSize int `yaml:"max_batch_size"`
	// FetchSize is the number of candidate records pulled from the store
	// per round-trip while scoring a search.
	FetchSize         int                `yaml:"fetch_size"`
	DefaultMode       string             `yaml:"default_mode"`
	DefaultAlpha      map[string]float64 `yaml:"default_alpha"`
	DefaultMaxResults int                `yaml:"default_max_results"`
	MaxResultsCeiling int                `yaml:"max_results_ceiling"`
	DefaultProfile    string             `yaml:"default_profile"`
	// EnforceTenantIsolation rejects unscoped requests instead of letting
	// them read across every tenant partition.
	EnforceTenantIsolation bool `yaml:"enforce_tenant_isolation"`
}

// StoreConfig holds item store settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, sqlite (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Path             string   `yaml:"path"` // sqlite database file
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds embedding and expansion provider settings.
type ProviderConfig struct {
	Name                string  `yaml:"name"`
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	ChatModel           string  `yaml:"chat_model"`
	User                string  `yaml:"user"`
	DocumentInstruction string  `yaml:"document_instruction"`
	QueryInstruction    string  `yaml:"query_instruction"`
	RateLimitRPS        float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Size   int `yaml:"size"`
	TTLSec int `yaml:"ttl_sec"` // 0 = no expiry
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Engine.Dimension <= 0 {
		c.Engine.Dimension = 384
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.ChunkSize <= 0 {
		c.Engine.ChunkSize = 32
	}
	if c.Engine.MaxBatchSize <= 0 {
		c.Engine.MaxBatchSize = 1024
	}
	if c.Engine.FetchSize <= 0 {
		c.Engine.FetchSize = 128
	}
	if c.Engine.DefaultMode == "" {
		c.Engine.DefaultMode = "hybrid"
	}
	if len(c.Engine.DefaultAlpha) == 0 {
		c.Engine.DefaultAlpha = map[string]float64{"hybrid": 0.7}
	}
	if c.Engine.DefaultMaxResults <= 0 {
		c.Engine.DefaultMaxResults = 10
	}
	if c.Engine.MaxResultsCeiling <= 0 {
		c.Engine.MaxResultsCeiling = 100
	}
	if c.Engine.DefaultProfile == "" {
		c.Engine.DefaultProfile = "default"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "relevar:"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "text-embedding-3-small"
	}
	if c.Provider.ChatModel == "" {
		c.Provider.ChatModel = "gpt-4o-mini"
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 10000
	}
	if c.Cache.TTLSec < 0 {
		c.Cache.TTLSec = 0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "memory", "redis", "sqlite":
		// ok
	default:
		return fmt.Errorf("store.driver must be \"memory\", \"redis\" or \"sqlite\", got %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && len(c.Store.Addrs) == 0 {
		return fmt.Errorf("store.addrs is required for the redis driver")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite driver")
	}
	if !validMode(c.Engine.DefaultMode) {
		return fmt.Errorf("engine.default_mode must be one of vector_only, keyword_only, hybrid, filtered_vector, semantic_keyword, got %q", c.Engine.DefaultMode)
	}
	for mode, alpha := range c.Engine.DefaultAlpha {
		if !validMode(mode) {
			return fmt.Errorf("engine.default_alpha references unknown mode %q", mode)
		}
		if alpha < 0 || alpha > 1 {
			return fmt.Errorf("engine.default_alpha.%s must be between 0 and 1, got %v", mode, alpha)
		}
	}
	if c.Engine.DefaultMaxResults > c.Engine.MaxResultsCeiling {
		return fmt.Errorf(
			"engine.default_max_results (%d) must not exceed engine.max_results_ceiling (%d)",
			c.Engine.DefaultMaxResults, c.Engine.MaxResultsCeiling,
		)
	}
	switch c.Engine.DefaultProfile {
	case "default", "precision", "exploration":
		// ok
	default:
		return fmt.Errorf(
			"engine.default_profile must be \"default\", \"precision\" or \"exploration\", got %q",
			c.Engine.DefaultProfile,
		)
	}
	return nil
}

func validMode(mode string) bool {
	switch mode {
	case "vector_only", "keyword_only", "hybrid", "filtered_vector", "semantic_keyword":
		return true
	}
	return false
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
