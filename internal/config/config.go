// Package config loads TBCV configuration from tbcv.yaml with environment
// overrides. Only the documented TBCV_* variables are read; the core performs
// no other environment access.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all TBCV configuration.
type Config struct {
	// ConfigDir is the root for rule configs and truth data.
	ConfigDir string `yaml:"config_dir"`
	// DataDir holds the store database, L2 cache and logs.
	DataDir string `yaml:"data_dir"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Router    RouterConfig    `yaml:"router"`
	Enhance   EnhanceConfig   `yaml:"enhance"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Logging   LoggingConfig   `yaml:"logging"`

	// MaintenanceMode refuses new workflow admissions when set at boot.
	MaintenanceMode bool `yaml:"maintenance_mode"`
}

// LLMConfig configures the semantic validation and critique model.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"` // hard timeout for the LLM phase

	// Content length gates for the LLM phase.
	MinContentLen int `yaml:"min_content_len"`
	MaxContentLen int `yaml:"max_content_len"`

	// ConfidenceThreshold filters llm_semantic issues.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// TimeoutDuration parses the configured timeout, defaulting to 30s.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// EmbeddingConfig configures the embedding provider for semantic truth lookup.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai" or "ollama"
	Endpoint string `yaml:"endpoint"` // ollama endpoint
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// CosineThreshold gates semantic truth matches.
	CosineThreshold float64 `yaml:"cosine_threshold"`
}

// RouterConfig configures the tiered validation router.
type RouterConfig struct {
	// TerminateOn lists issue levels that stop the pipeline between tiers.
	TerminateOn []string `yaml:"terminate_on"`
}

// CacheConfig configures the two-tier cache.
type CacheConfig struct {
	L1Capacity int    `yaml:"l1_capacity"`
	DefaultTTL string `yaml:"default_ttl"`
	LLMTTL     string `yaml:"llm_ttl"`
}

// EnhanceConfig configures the surgical enhancer.
type EnhanceConfig struct {
	ContextLines     int     `yaml:"context_lines"`
	SafetyThreshold  float64 `yaml:"safety_threshold"`
	PreviewTTL       string  `yaml:"preview_ttl"`
	RollbackTTL      string  `yaml:"rollback_ttl"`
}

// WorkflowConfig configures batch execution.
type WorkflowConfig struct {
	Workers        int     `yaml:"workers"`
	ErrorThreshold float64 `yaml:"error_threshold"` // fraction of failed items that fails the workflow
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConfigDir: "config",
		DataDir:   ".tbcv",
		LLM: LLMConfig{
			Model:               "gemini-2.0-flash",
			Timeout:             "30s",
			MinContentLen:       100,
			MaxContentLen:       50000,
			ConfidenceThreshold: 0.7,
		},
		Embedding: EmbeddingConfig{
			Provider:        "genai",
			Endpoint:        "http://localhost:11434",
			Model:           "gemini-embedding-001",
			CosineThreshold: 0.7,
		},
		Cache: CacheConfig{
			L1Capacity: 10000,
			DefaultTTL: "1h",
			LLMTTL:     "24h",
		},
		Router: RouterConfig{
			TerminateOn: []string{"critical"},
		},
		Enhance: EnhanceConfig{
			ContextLines:    10,
			SafetyThreshold: 0.8,
			PreviewTTL:      "30m",
			RollbackTTL:     "168h", // 7 days
		},
		Workflow: WorkflowConfig{
			Workers:        8,
			ErrorThreshold: 0.5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads tbcv.yaml from the given path (or defaults when missing) and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies the documented TBCV_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("TBCV_CONFIG_DIR"); v != "" {
		c.ConfigDir = v
	}
	if v := os.Getenv("TBCV_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TBCV_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("TBCV_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TBCV_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TBCV_EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("TBCV_MAINTENANCE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MaintenanceMode = b
		}
	}
}

// DatabasePath returns the sqlite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tbcv.db")
}

// RulesDir returns the validator rule config directory.
func (c *Config) RulesDir() string {
	return filepath.Join(c.ConfigDir, "rules")
}

// TruthDir returns the truth data directory.
func (c *Config) TruthDir() string {
	return filepath.Join(c.ConfigDir, "truth")
}
