package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KUDOS_"

// listKeys are the slice-valued settings that accept comma separated env values.
var listKeys = map[string]struct{}{ //nolint:gochecknoglobals // lookup table
	"level_thresholds":  {},
	"streak_milestones": {},
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if KUDOS_CONFIG is set
//  3. env (prefix KUDOS_)
//
// Level thresholds and streak milestones accept comma separated env values,
// e.g. KUDOS_STREAK_MILESTONES=7,30. Badge maps are file-only.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// KUDOS_QUEUE_SIZE -> queue_size; underscores are kept to match the koanf tags.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Lists replace the defaults rather than merging element-wise.
	if k.Exists("level_thresholds") {
		cfg.LevelThresholds = nil
	}
	if k.Exists("streak_milestones") {
		cfg.StreakMilestones = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
