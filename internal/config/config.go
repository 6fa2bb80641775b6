// Package config handles configuration loading and management for rlm.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helloagents/rlm/internal/api"
	"github.com/helloagents/rlm/internal/contextmgr"
	"github.com/helloagents/rlm/internal/engine"
	"github.com/helloagents/rlm/internal/filelock"
	"github.com/helloagents/rlm/internal/folding"
	"github.com/helloagents/rlm/pkg/models"
)

// ProjectConfigName is the per-project override file.
const ProjectConfigName = ".rlm.yaml"

// Config holds all configuration for rlm.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Context   ContextConfig   `mapstructure:"context"`
	Folding   FoldingConfig   `mapstructure:"folding"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Log       LogConfig       `mapstructure:"log"`
}

// EngineConfig holds spawn budgets and backend selection.
type EngineConfig struct {
	Mode           string        `mapstructure:"mode"`
	Backend        string        `mapstructure:"backend"`
	Model          string        `mapstructure:"model"`
	MaxDepth       int           `mapstructure:"max_depth"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	RolesDir       string        `mapstructure:"roles_dir"`
	AutoFoldTokens int           `mapstructure:"auto_fold_tokens"`
	// ProtectedPaths are extra globs or ".ext" file types that API-backed
	// agents may not modify.
	ProtectedPaths []string `mapstructure:"protected_paths"`
}

// ContextConfig holds the tiered context settings.
type ContextConfig struct {
	CompactionInterval int    `mapstructure:"compaction_interval"`
	OverlapSize        int    `mapstructure:"overlap_size"`
	MaxWorkingTokens   int    `mapstructure:"max_working_tokens"`
	KnowledgeBase      string `mapstructure:"knowledge_base"`
}

// FoldingConfig holds trajectory folding settings.
type FoldingConfig struct {
	Strategy           string `mapstructure:"strategy"`
	MaxSummaryLength   int    `mapstructure:"max_summary_length"`
	PreserveCodeBlocks bool   `mapstructure:"preserve_code_blocks"`
}

// TasksConfig holds shared task list settings.
type TasksConfig struct {
	// ListEnv names the environment variable carrying the list id.
	ListEnv      string        `mapstructure:"list_env"`
	LockAttempts int           `mapstructure:"lock_attempts"`
	LockBackoff  time.Duration `mapstructure:"lock_backoff"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
}

// LogConfig holds logging settings. An empty File logs to
// <knowledge base>/logs/rlm.log; "off" disables logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (RLM_ENGINE_MODE, ..., ANTHROPIC_API_KEY)
// 2. Project config (.rlm.yaml in current directory or parent)
// 3. User config (~/.config/rlm/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the
// defaults and the environment.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "RLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Context.KnowledgeBase = os.ExpandEnv(cfg.Context.KnowledgeBase)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if !models.Mode(c.Engine.Mode).Valid() {
		return fmt.Errorf("engine.mode: unknown mode %q", c.Engine.Mode)
	}
	if c.Engine.Backend != "" && !models.Backend(c.Engine.Backend).Valid() {
		return fmt.Errorf("engine.backend: unknown backend %q", c.Engine.Backend)
	}
	if !models.FoldStrategy(c.Folding.Strategy).Valid() {
		return fmt.Errorf("folding.strategy: unknown strategy %q", c.Folding.Strategy)
	}
	if c.Engine.MaxDepth < 0 || c.Engine.MaxParallel < 0 {
		return errors.New("engine: max_depth and max_parallel must not be negative")
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	v.Set("engine.mode", cfg.Engine.Mode)
	v.Set("engine.backend", cfg.Engine.Backend)
	v.Set("engine.model", cfg.Engine.Model)
	v.Set("engine.max_depth", cfg.Engine.MaxDepth)
	v.Set("engine.max_parallel", cfg.Engine.MaxParallel)
	v.Set("engine.default_timeout", cfg.Engine.DefaultTimeout.String())
	v.Set("engine.roles_dir", cfg.Engine.RolesDir)
	v.Set("engine.auto_fold_tokens", cfg.Engine.AutoFoldTokens)
	if len(cfg.Engine.ProtectedPaths) > 0 {
		v.Set("engine.protected_paths", cfg.Engine.ProtectedPaths)
	}
	v.Set("context.compaction_interval", cfg.Context.CompactionInterval)
	v.Set("context.overlap_size", cfg.Context.OverlapSize)
	v.Set("context.max_working_tokens", cfg.Context.MaxWorkingTokens)
	v.Set("context.knowledge_base", cfg.Context.KnowledgeBase)
	v.Set("folding.strategy", cfg.Folding.Strategy)
	v.Set("folding.max_summary_length", cfg.Folding.MaxSummaryLength)
	v.Set("folding.preserve_code_blocks", cfg.Folding.PreserveCodeBlocks)
	v.Set("tasks.list_env", cfg.Tasks.ListEnv)
	v.Set("tasks.lock_attempts", cfg.Tasks.LockAttempts)
	v.Set("tasks.lock_backoff", cfg.Tasks.LockBackoff.String())
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine.mode", d.Engine.Mode)
	v.SetDefault("engine.backend", d.Engine.Backend)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.max_depth", d.Engine.MaxDepth)
	v.SetDefault("engine.max_parallel", d.Engine.MaxParallel)
	v.SetDefault("engine.default_timeout", d.Engine.DefaultTimeout.String())
	v.SetDefault("engine.roles_dir", d.Engine.RolesDir)
	v.SetDefault("engine.auto_fold_tokens", d.Engine.AutoFoldTokens)

	v.SetDefault("context.compaction_interval", d.Context.CompactionInterval)
	v.SetDefault("context.overlap_size", d.Context.OverlapSize)
	v.SetDefault("context.max_working_tokens", d.Context.MaxWorkingTokens)
	v.SetDefault("context.knowledge_base", d.Context.KnowledgeBase)

	v.SetDefault("folding.strategy", d.Folding.Strategy)
	v.SetDefault("folding.max_summary_length", d.Folding.MaxSummaryLength)
	v.SetDefault("folding.preserve_code_blocks", d.Folding.PreserveCodeBlocks)

	v.SetDefault("tasks.list_env", d.Tasks.ListEnv)
	v.SetDefault("tasks.lock_attempts", d.Tasks.LockAttempts)
	v.SetDefault("tasks.lock_backoff", d.Tasks.LockBackoff.String())

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// getUserConfigDir returns the XDG config directory for rlm.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rlm")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "rlm")
	}
	return filepath.Join(home, ".config", "rlm")
}

// findProjectConfig searches for .rlm.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Mode:           string(models.ModeActive),
			MaxDepth:       engine.DefaultMaxDepth,
			MaxParallel:    engine.DefaultMaxParallel,
			DefaultTimeout: engine.DefaultTimeout,
			AutoFoldTokens: engine.DefaultAutoFoldTokens,
		},
		Context: ContextConfig{
			CompactionInterval: 10,
			OverlapSize:        2,
			MaxWorkingTokens:   8000,
		},
		Folding: FoldingConfig{
			Strategy:           string(models.FoldBalanced),
			MaxSummaryLength:   folding.DefaultMaxSummaryLength,
			PreserveCodeBlocks: true,
		},
		Tasks: TasksConfig{
			ListEnv:      "hellotasks",
			LockAttempts: filelock.DefaultAttempts,
			LockBackoff:  filelock.DefaultBackoff,
		},
		Anthropic: AnthropicConfig{
			MaxTokens: api.DefaultMaxTokens,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// EngineConfig converts the engine section. SessionID and CacheDir are
// left for the caller.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Mode:           models.Mode(c.Engine.Mode),
		Backend:        models.Backend(c.Engine.Backend),
		MaxDepth:       c.Engine.MaxDepth,
		MaxParallel:    c.Engine.MaxParallel,
		DefaultTimeout: c.Engine.DefaultTimeout,
		AutoFoldTokens: c.Engine.AutoFoldTokens,
	}
}

// ContextManagerConfig converts the context section. An empty knowledge
// base keeps the manager's cwd default.
func (c *Config) ContextManagerConfig() contextmgr.Config {
	out := contextmgr.DefaultConfig()
	if c.Context.CompactionInterval > 0 {
		out.CompactionInterval = c.Context.CompactionInterval
	}
	if c.Context.OverlapSize >= 0 {
		out.OverlapSize = c.Context.OverlapSize
	}
	if c.Context.MaxWorkingTokens > 0 {
		out.MaxWorkingTokens = c.Context.MaxWorkingTokens
	}
	if c.Context.KnowledgeBase != "" {
		out.KnowledgeBase = c.Context.KnowledgeBase
	}
	return out
}

// FolderConfig converts the folding section.
func (c *Config) FolderConfig() folding.Config {
	return folding.Config{
		Strategy:           models.FoldStrategy(c.Folding.Strategy),
		MaxSummaryLength:   c.Folding.MaxSummaryLength,
		PreserveCodeBlocks: c.Folding.PreserveCodeBlocks,
	}
}

// ExecutorConfig converts the backend settings. An empty backend is
// detected when the executor is built.
func (c *Config) ExecutorConfig(workDir string) engine.ExecutorConfig {
	key, _ := GetAPIKey(c)
	return engine.ExecutorConfig{
		Backend:        models.Backend(c.Engine.Backend),
		Model:          c.Engine.Model,
		WorkDir:        workDir,
		ProtectedPaths: c.Engine.ProtectedPaths,
		Anthropic: api.ClientConfig{
			APIKey:        key,
			MaxTokens:     c.Anthropic.MaxTokens,
			UseAWSBedrock: c.Anthropic.UseBedrock,
			AWSRegion:     c.Anthropic.AWSRegion,
			AWSProfile:    c.Anthropic.AWSProfile,
		},
	}
}

// LockOptions converts the tasks lock budget.
func (c *Config) LockOptions() []filelock.Option {
	return []filelock.Option{
		filelock.WithAttempts(c.Tasks.LockAttempts),
		filelock.WithBackoff(c.Tasks.LockBackoff),
	}
}

// TaskListID reads the shared list id from the configured variable.
func (c *Config) TaskListID() string {
	return os.Getenv(c.Tasks.ListEnv)
}
