package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type EmbeddingsConfig struct {
	Backend   string `yaml:"backend"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

type CaptureConfig struct {
	LockTimeout    time.Duration `yaml:"lock_timeout"`
	AutoNamespaces []string      `yaml:"auto_namespaces,omitempty"`
	DedupCapacity  int           `yaml:"dedup_capacity"`
}

type RecallConfig struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	DefaultLimit int           `yaml:"default_limit"`
}

type LifecycleConfig struct {
	HalfLifeDays float64 `yaml:"half_life_days"`
	ActiveDays   float64 `yaml:"active_days"`
	AgingDays    float64 `yaml:"aging_days"`
	StaleDays    float64 `yaml:"stale_days"`
}

type HydrationConfig struct {
	MaxFiles     int `yaml:"max_files"`
	MaxFileBytes int `yaml:"max_file_bytes"`
}

type ProviderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

type Config struct {
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Capture    CaptureConfig    `yaml:"capture"`
	Recall     RecallConfig     `yaml:"recall"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Hydration  HydrationConfig  `yaml:"hydration"`
	Provider   ProviderConfig   `yaml:"provider,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Backend:   "openai",
			Model:     "text-embedding-3-small",
			Dimension: DefaultEmbeddingDimension,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Capture: CaptureConfig{
			LockTimeout:    DefaultLockTimeout,
			AutoNamespaces: []string{string(NamespaceLearnings)},
			DedupCapacity:  DefaultDedupCapacity,
		},
		Recall: RecallConfig{
			CacheTTL:     DefaultCacheTTL,
			DefaultLimit: 10,
		},
		Lifecycle: LifecycleConfig{
			HalfLifeDays: DefaultHalfLifeDays,
			ActiveDays:   7,
			AgingDays:    30,
			StaleDays:    90,
		},
		Hydration: HydrationConfig{
			MaxFiles:     DefaultHydrationMaxFiles,
			MaxFileBytes: DefaultHydrationMaxFileBytes,
		},
	}
}

func LoadConfig(scope Scope) (*Config, error) {
	path := scope.ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(scope.EngramPath, 0755); err != nil {
		return fmt.Errorf("create engram directory: %w", err)
	}
	if err := os.WriteFile(scope.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
