// Copyright 2025 Certen Protocol
//
// CAS Configuration Loader
//
// Provides configuration loading for the certification anchor service
// from YAML files with environment variable substitution.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ==============================================================================
// CAS Configuration Structures
// ==============================================================================

// CASConfig holds the batch-orchestration tunables that do not belong in
// the flat environment config.
type CASConfig struct {
	Environment string `yaml:"environment"`

	Merkle      MerkleSettings      `yaml:"merkle"`
	Batch       BatchSettings       `yaml:"batch"`
	Oracle      OracleSettings      `yaml:"oracle"`
	Ledger      LedgerSettings      `yaml:"ledger"`
	Blockstore  BlockstoreSettings  `yaml:"blockstore"`
}

// MerkleSettings bounds the shape of the anchor tree.
type MerkleSettings struct {
	DepthLimit int `yaml:"depth_limit"`
}

// BatchSettings controls how often and how large a batch run is.
type BatchSettings struct {
	MinStreamCount       int      `yaml:"min_stream_count"`
	PollInterval         Duration `yaml:"poll_interval"`
	ReadyExpiry          Duration `yaml:"ready_expiry"`
	UseSmartContractAnchors bool  `yaml:"use_smart_contract_anchors"`
}

// OracleSettings selects the stream-tip conflict resolution strategy.
type OracleSettings struct {
	ConflictResolution string `yaml:"conflict_resolution"` // "passthrough" | "strict"
}

// LedgerSettings configures the ledger adapter's submission behavior.
type LedgerSettings struct {
	ChainID       string `yaml:"chain_id"`
	TxType        string `yaml:"tx_type"`
	MaxGasPriceGwei int64 `yaml:"max_gas_price_gwei"`
}

// BlockstoreSettings configures the content-addressed block store adapter.
type BlockstoreSettings struct {
	PinTimeout Duration `yaml:"pin_timeout"`
	// GCRetention is how long a COMPLETED request's anchored content stays
	// pinned before garbage collection is allowed to reclaim it.
	GCRetention Duration `yaml:"gc_retention"`
	// GCBatchSize bounds how many requests one GC pass unpins.
	GCBatchSize int `yaml:"gc_batch_size"`
}

// ==============================================================================
// Duration Type for YAML Parsing
// ==============================================================================

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ==============================================================================
// Configuration Loading
// ==============================================================================

// LoadCASConfig loads the CAS configuration from a YAML file.
// Environment variables in the format ${VAR_NAME} are substituted.
func LoadCASConfig(path string) (*CASConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg CASConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unset fields
func (c *CASConfig) applyDefaults() {
	if c.Merkle.DepthLimit == 0 {
		c.Merkle.DepthLimit = 32
	}
	if c.Batch.MinStreamCount == 0 {
		c.Batch.MinStreamCount = 1
	}
	if c.Batch.PollInterval == 0 {
		c.Batch.PollInterval = Duration(30 * time.Second)
	}
	if c.Batch.ReadyExpiry == 0 {
		c.Batch.ReadyExpiry = Duration(10 * time.Minute)
	}
	if c.Oracle.ConflictResolution == "" {
		c.Oracle.ConflictResolution = "passthrough"
	}
	if c.Ledger.TxType == "" {
		c.Ledger.TxType = "f(bytes32)"
	}
	if c.Blockstore.PinTimeout == 0 {
		c.Blockstore.PinTimeout = Duration(15 * time.Second)
	}
	if c.Blockstore.GCRetention == 0 {
		c.Blockstore.GCRetention = Duration(30 * 24 * time.Hour)
	}
	if c.Blockstore.GCBatchSize == 0 {
		c.Blockstore.GCBatchSize = 500
	}
}

// ==============================================================================
// Environment Variable Substitution
// ==============================================================================

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ==============================================================================
// Configuration Validation
// ==============================================================================

// ValidateCASConfig validates the CAS configuration for production use.
func (c *CASConfig) ValidateCASConfig() error {
	var errs []string

	if c.Merkle.DepthLimit <= 0 {
		errs = append(errs, "merkle.depth_limit must be positive")
	}
	if c.Oracle.ConflictResolution != "passthrough" && c.Oracle.ConflictResolution != "strict" {
		errs = append(errs, "oracle.conflict_resolution must be \"passthrough\" or \"strict\"")
	}
	if c.Ledger.ChainID == "" {
		errs = append(errs, "ledger.chain_id is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid CAS config: %s", strings.Join(errs, "; "))
	}
	return nil
}
