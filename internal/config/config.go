package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Review        ReviewConfig        `toml:"review"`
	GitHub        GitHubConfig        `toml:"github"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath  string        `toml:"database_path"`
	SpoolDir      string        `toml:"spool_dir"`
	DataRetention time.Duration `toml:"data_retention"`
	RetentionCron string        `toml:"retention_cron"`
}

// ReviewConfig holds workflow tuning
type ReviewConfig struct {
	// ChunkThreshold is the changed-file count above which a PR is
	// split into chunks instead of reviewed as one unit.
	ChunkThreshold int `toml:"chunk_threshold"`
	// ChunkMaxFiles bounds the files per chunk.
	ChunkMaxFiles int `toml:"chunk_max_files"`
	// ChunkMaxBytes bounds the patch bytes per chunk.
	ChunkMaxBytes int `toml:"chunk_max_bytes"`
	// FirstPassConcurrency bounds parallel chunk processing.
	FirstPassConcurrency int `toml:"first_pass_concurrency"`
	// RetryPassConcurrency bounds the single retry pass. Serial by
	// default so a rate-limit condition is not amplified.
	RetryPassConcurrency int           `toml:"retry_pass_concurrency"`
	RetryPassDelay       time.Duration `toml:"retry_pass_delay"`
	// ItemRetry* tune the in-place retry of a rate-limited chunk.
	ItemRetryAttempts   int           `toml:"item_retry_attempts"`
	ItemRetryDelay      time.Duration `toml:"item_retry_delay"`
	ItemRetryMultiplier float64       `toml:"item_retry_multiplier"`
	// StateRetry* tune the workflow-state retry budget.
	StateRetryAttempts   int           `toml:"state_retry_attempts"`
	StateRetryBase       time.Duration `toml:"state_retry_base"`
	StateRetryMultiplier float64       `toml:"state_retry_multiplier"`
	// ExecutionTimeout bounds a whole execution.
	ExecutionTimeout time.Duration `toml:"execution_timeout"`
	Model            string        `toml:"model"`
	MaxTokens        int           `toml:"max_tokens"`
	// PromptDir optionally overrides the built-in prompt templates.
	PromptDir string `toml:"prompt_dir"`
}

// GitHubConfig holds code-hosting API settings
type GitHubConfig struct {
	APIURL   string `toml:"api_url"`
	TokenEnv string `toml:"token_env"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
	Desktop      bool   `toml:"desktop"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:  filepath.Join(home, ".pr-review-orchestrator", "reviews.db"),
			SpoolDir:      filepath.Join(home, ".pr-review-orchestrator", "spool"),
			DataRetention: 14 * 24 * time.Hour,
			RetentionCron: "0 3 * * *",
		},
		Review: ReviewConfig{
			ChunkThreshold:       5,
			ChunkMaxFiles:        3,
			ChunkMaxBytes:        100000,
			FirstPassConcurrency: 3,
			RetryPassConcurrency: 1,
			RetryPassDelay:       2 * time.Second,
			ItemRetryAttempts:    3,
			ItemRetryDelay:       5 * time.Second,
			ItemRetryMultiplier:  2.0,
			StateRetryAttempts:   2,
			StateRetryBase:       3 * time.Second,
			StateRetryMultiplier: 1.5,
			ExecutionTimeout:     30 * time.Minute,
			Model:                "claude-sonnet-4-20250514",
			MaxTokens:            8192,
		},
		GitHub: GitHubConfig{
			APIURL:   "https://api.github.com",
			TokenEnv: "GITHUB_TOKEN",
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.SpoolDir = ExpandPath(cfg.General.SpoolDir)
	cfg.Review.PromptDir = ExpandPath(cfg.Review.PromptDir)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pr-review-orchestrator", "config.toml")
}
