package vm

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config carries per-context VM options. Zero values fall back to the
// defaults, so a partial TOML file is fine.
type Config struct {
	// ByteOrder selects packet read order: "big" (network order, the
	// default) or "little" for non-network use.
	ByteOrder string `toml:"byte_order"`
	// StepLimit overrides the per-execution instruction budget.
	StepLimit int `toml:"step_limit"`
	// Extensions holds per-extension configuration, keyed by extension
	// name. NewContextWith does not keep this map, so an extension's
	// Initialize cannot read its section through the Context.
	Extensions map[string]map[string]string `toml:"extensions"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		ByteOrder: "big",
		StepLimit: StepLimit,
	}
}

// LoadConfig reads a TOML config file and applies defaults for anything
// left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("vm: config %s: %w", path, err)
	}
	switch cfg.ByteOrder {
	case "", "big", "little":
	default:
		return Config{}, fmt.Errorf("vm: config %s: byte_order %q (want big or little)", path, cfg.ByteOrder)
	}
	if cfg.ByteOrder == "" {
		cfg.ByteOrder = "big"
	}
	return cfg, nil
}
