package dynamo

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the DynamoDB adapter pool.
type Config struct {
	// TablePrefix prefixes every column-family table name.
	// Default: "sparse"
	TablePrefix string `env:"SPARSE_TABLE_PREFIX"`

	// Region overrides the AWS region from the default credential chain.
	Region string `env:"SPARSE_AWS_REGION"`

	// Endpoint points the client at a non-default DynamoDB endpoint, e.g.
	// a local instance during development.
	Endpoint string `env:"SPARSE_DYNAMO_ENDPOINT"`

	// ParentHashIndex is the GSI used to answer children queries.
	// Default: "parenthash-index"
	ParentHashIndex string `env:"SPARSE_PARENT_HASH_INDEX"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TablePrefix:     "sparse",
		ParentHashIndex: "parenthash-index",
	}
}

// ConfigFromEnv builds a Config from SPARSE_* environment variables,
// falling back to defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.validate()
	return cfg, nil
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TablePrefix == "" {
		c.TablePrefix = "sparse"
	}
	if c.ParentHashIndex == "" {
		c.ParentHashIndex = "parenthash-index"
	}
}

// tableName maps a column family onto its table. Families are lowercased,
// matching the RowHash contract.
func (c *Config) tableName(columnFamily string) string {
	return c.TablePrefix + "_" + strings.ToLower(columnFamily)
}
