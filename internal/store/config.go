package store

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/seantiz/graphkeep/internal/config"
)

// Storage node keys.
const (
	keyStorageDirectory       = "storage-directory"
	keyDatabaseFile           = "database-file"
	keyChannelCount           = "channel-count"
	keyHousekeepingInterval   = "housekeeping-interval"
	keyHousekeepingTimeBudget = "housekeeping-time-budget"
)

// Defaults applied to settings a storage node leaves out.
const (
	DefaultDatabaseFile           = "graph.db"
	DefaultChannelCount           = 1
	DefaultHousekeepingInterval   = time.Second
	DefaultHousekeepingTimeBudget = 10 * time.Millisecond
)

var known = map[string]bool{
	keyStorageDirectory:       true,
	keyDatabaseFile:           true,
	keyChannelCount:           true,
	keyHousekeepingInterval:   true,
	keyHousekeepingTimeBudget: true,
}

var validate = validator.New()

// Config holds the settings of one SQLite-backed store.
type Config struct {
	// StorageDirectory holds the database and its journal files.
	StorageDirectory string `validate:"required"`

	// DatabaseFile is the file name inside StorageDirectory.
	DatabaseFile string `validate:"required,excludesall=/"`

	// ChannelCount bounds the number of open database connections.
	ChannelCount int `validate:"min=1,max=64"`

	// HousekeepingInterval is the period between journal checkpoints.
	// Zero disables housekeeping.
	HousekeepingInterval time.Duration `validate:"min=0"`

	// HousekeepingTimeBudget bounds a single checkpoint.
	HousekeepingTimeBudget time.Duration `validate:"min=0"`

	// Extra carries node settings this store does not interpret, keyed by
	// their dotted path below the node.
	Extra map[string]string `validate:"-"`
}

// DefaultConfig returns a config rooted at dir with default settings.
func DefaultConfig(dir string) Config {
	return Config{
		StorageDirectory:       dir,
		DatabaseFile:           DefaultDatabaseFile,
		ChannelCount:           DefaultChannelCount,
		HousekeepingInterval:   DefaultHousekeepingInterval,
		HousekeepingTimeBudget: DefaultHousekeepingTimeBudget,
	}
}

// ConfigFromNode reads a storage config node, applying defaults for missing
// keys, and validates the result.
func ConfigFromNode(node config.Node) (Config, error) {
	dir, _ := node.String(keyStorageDirectory)
	cfg := DefaultConfig(dir)

	if v, ok := node.String(keyDatabaseFile); ok {
		cfg.DatabaseFile = v
	}
	cfg.ChannelCount = int(node.Int(keyChannelCount, DefaultChannelCount))
	cfg.HousekeepingInterval = node.Duration(keyHousekeepingInterval, DefaultHousekeepingInterval)
	cfg.HousekeepingTimeBudget = node.Duration(keyHousekeepingTimeBudget, DefaultHousekeepingTimeBudget)

	for k, v := range node.Map() {
		if known[k] {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]string)
		}
		cfg.Extra[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("storage config %q: %w", node.Path(), err)
	}
	return cfg, nil
}

// Validate checks the config against its constraints.
func (c Config) Validate() error {
	return validate.Struct(c)
}
