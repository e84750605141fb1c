package artifact

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DefaultHistoryLimit caps retained history runs per test when the config
// does not say otherwise.
const DefaultHistoryLimit = 10

// StoreConfig configures a Store. Retention state is always carried
// explicitly in this struct; there is no module-level default store.
type StoreConfig struct {
	// BaseDir is the root under which latest/ and history/ live.
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// HistoryLimit is the maximum number of history runs kept per test id.
	// Zero means DefaultHistoryLimit; negative disables pruning.
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
}

// LoadStoreConfig reads a YAML store configuration file.
func LoadStoreConfig(path string) (*StoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store config: %w", err)
	}
	var cfg StoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse store config %q: %w", path, err)
	}
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("store config %q: base_dir is required", path)
	}
	return &cfg, nil
}

// historyLimit resolves the effective cap.
func (c StoreConfig) historyLimit() int {
	if c.HistoryLimit == 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}
