package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helloagents/rlm/internal/config"
)

// configKeys lists every key config shows, in display order.
var configKeys = []string{
	"engine.mode",
	"engine.backend",
	"engine.model",
	"engine.max_depth",
	"engine.max_parallel",
	"engine.default_timeout",
	"engine.roles_dir",
	"engine.auto_fold_tokens",
	"context.compaction_interval",
	"context.overlap_size",
	"context.max_working_tokens",
	"context.knowledge_base",
	"folding.strategy",
	"folding.max_summary_length",
	"folding.preserve_code_blocks",
	"tasks.list_env",
	"tasks.lock_attempts",
	"tasks.lock_backoff",
	"anthropic.api_key",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"anthropic.aws_profile",
	"anthropic.max_tokens",
	"log.level",
	"log.file",
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Manage configuration",
		Long: `View or modify rlm configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/rlm/config.yaml (or the file given
with --config). Project-specific overrides can be placed in .rlm.yaml`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				return a.displayAllConfig()
			case 1:
				value, err := getConfigValue(a.cfg, args[0])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(map[string]string{args[0]: value})
				}
				a.printf("%s\n", value)
				return nil
			default:
				return a.setConfigKey(args[0], args[1])
			}
		},
	}
}

func (a *app) displayAllConfig() error {
	values := make(map[string]string, len(configKeys))
	for _, k := range configKeys {
		v, err := getConfigValue(a.cfg, k)
		if err != nil {
			return err
		}
		values[k] = v
	}
	if a.jsonOut {
		return a.printJSON(values)
	}
	for _, k := range configKeys {
		a.printf("%s: %s\n", k, values[k])
	}
	return nil
}

// setConfigKey sets a value, validates the result and saves it.
func (a *app) setConfigKey(key, value string) error {
	if err := setConfigValue(a.cfg, key, value); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	var err error
	if a.configPath != "" {
		err = config.SaveTo(a.cfg, a.configPath)
	} else {
		err = config.Save(a.cfg)
	}
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if strings.EqualFold(key, "anthropic.api_key") {
		value = config.MaskAPIKey(value)
	}
	a.printf("Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "engine.mode":
		return cfg.Engine.Mode, nil
	case "engine.backend":
		return cfg.Engine.Backend, nil
	case "engine.model":
		return cfg.Engine.Model, nil
	case "engine.max_depth":
		return strconv.Itoa(cfg.Engine.MaxDepth), nil
	case "engine.max_parallel":
		return strconv.Itoa(cfg.Engine.MaxParallel), nil
	case "engine.default_timeout":
		return cfg.Engine.DefaultTimeout.String(), nil
	case "engine.roles_dir":
		return cfg.Engine.RolesDir, nil
	case "engine.auto_fold_tokens":
		return strconv.Itoa(cfg.Engine.AutoFoldTokens), nil
	case "context.compaction_interval":
		return strconv.Itoa(cfg.Context.CompactionInterval), nil
	case "context.overlap_size":
		return strconv.Itoa(cfg.Context.OverlapSize), nil
	case "context.max_working_tokens":
		return strconv.Itoa(cfg.Context.MaxWorkingTokens), nil
	case "context.knowledge_base":
		return cfg.Context.KnowledgeBase, nil
	case "folding.strategy":
		return cfg.Folding.Strategy, nil
	case "folding.max_summary_length":
		return strconv.Itoa(cfg.Folding.MaxSummaryLength), nil
	case "folding.preserve_code_blocks":
		return strconv.FormatBool(cfg.Folding.PreserveCodeBlocks), nil
	case "tasks.list_env":
		return cfg.Tasks.ListEnv, nil
	case "tasks.lock_attempts":
		return strconv.Itoa(cfg.Tasks.LockAttempts), nil
	case "tasks.lock_backoff":
		return cfg.Tasks.LockBackoff.String(), nil
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "anthropic.max_tokens":
		return strconv.FormatInt(cfg.Anthropic.MaxTokens, 10), nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.file":
		return cfg.Log.File, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	k := strings.ToLower(key)
	switch k {
	case "engine.mode":
		cfg.Engine.Mode = value
	case "engine.backend":
		cfg.Engine.Backend = value
	case "engine.model":
		cfg.Engine.Model = value
	case "engine.roles_dir":
		cfg.Engine.RolesDir = value
	case "context.knowledge_base":
		cfg.Context.KnowledgeBase = value
	case "folding.strategy":
		cfg.Folding.Strategy = value
	case "tasks.list_env":
		cfg.Tasks.ListEnv = value
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value

	case "engine.max_depth", "engine.max_parallel", "engine.auto_fold_tokens",
		"context.compaction_interval", "context.overlap_size", "context.max_working_tokens",
		"folding.max_summary_length", "tasks.lock_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", k, err)
		}
		*intField(cfg, k) = n
	case "anthropic.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", k, err)
		}
		cfg.Anthropic.MaxTokens = n

	case "engine.default_timeout", "tasks.lock_backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", k, err)
		}
		if k == "engine.default_timeout" {
			cfg.Engine.DefaultTimeout = d
		} else {
			cfg.Tasks.LockBackoff = d
		}

	case "folding.preserve_code_blocks", "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", k, err)
		}
		if k == "anthropic.use_bedrock" {
			cfg.Anthropic.UseBedrock = b
		} else {
			cfg.Folding.PreserveCodeBlocks = b
		}
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func intField(cfg *config.Config, key string) *int {
	switch key {
	case "engine.max_depth":
		return &cfg.Engine.MaxDepth
	case "engine.max_parallel":
		return &cfg.Engine.MaxParallel
	case "engine.auto_fold_tokens":
		return &cfg.Engine.AutoFoldTokens
	case "context.compaction_interval":
		return &cfg.Context.CompactionInterval
	case "context.overlap_size":
		return &cfg.Context.OverlapSize
	case "context.max_working_tokens":
		return &cfg.Context.MaxWorkingTokens
	case "folding.max_summary_length":
		return &cfg.Folding.MaxSummaryLength
	default:
		return &cfg.Tasks.LockAttempts
	}
}
