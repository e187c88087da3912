// Package config loads the node's startup document (§6): network
// identity, block-production parameters, the standby committee, runtime
// options (storage engine, data directory, P2P/RPC bind addresses, seed
// nodes, connection limits) and hardfork activation heights. It mirrors
// the teacher's own config package in shape (a single struct unmarshaled
// from YAML, with environment-variable overrides) but is rewritten
// against go.mod's actual `gopkg.in/yaml.v3` dependency rather than
// viper, which this module does not carry.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/n3node/core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified node configuration document described in §6.
type Config struct {
	Network struct {
		Magic         uint32   `yaml:"magic"`
		MillisPerBlock uint32  `yaml:"millis_per_block"`
		MaxTransactionsPerBlock uint32 `yaml:"max_transactions_per_block"`
		MaxBlockSize  uint32   `yaml:"max_block_size"`
		MaxBlockSystemFee int64 `yaml:"max_block_system_fee"`
		ValidatorsCount int    `yaml:"validators_count"`
		CommitteeMembersCount int `yaml:"committee_members_count"`
		StandbyCommittee []string `yaml:"standby_committee"` // hex-encoded compressed public keys
		ValidatorKey  string   `yaml:"validator_key"` // hex-encoded private scalar; empty means "observer, never primary"
		Hardforks     map[string]uint32 `yaml:"hardforks"`
	} `yaml:"network"`

	P2P struct {
		Port        uint16   `yaml:"port"`
		BindAddress string   `yaml:"bind_address"`
		SeedNodes   []string `yaml:"seed_nodes"`
		MaxConnections int   `yaml:"max_connections"`
	} `yaml:"p2p"`

	RPC struct {
		Port        uint16 `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"rpc"`

	Storage struct {
		Engine  string `yaml:"engine"` // "memory" or "leveldb"
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Default returns the baseline configuration used by DevNet-style
// single-process test networks: four validators, a 15s block time, an
// in-memory store, no seed nodes.
func Default() *Config {
	var c Config
	c.Network.Magic = 0x4e334e30 // "N3N0", a private-network placeholder magic
	c.Network.MillisPerBlock = 15000
	c.Network.MaxTransactionsPerBlock = 512
	c.Network.MaxBlockSize = 1 << 20
	c.Network.MaxBlockSystemFee = 9000 * 100_000_000
	c.Network.ValidatorsCount = 4
	c.Network.CommitteeMembersCount = 4
	c.P2P.Port = 20333
	c.P2P.BindAddress = "0.0.0.0"
	c.P2P.MaxConnections = 40
	c.RPC.Port = 20332
	c.RPC.BindAddress = "127.0.0.1"
	c.Storage.Engine = "memory"
	c.Storage.DataDir = "./chain"
	c.Logging.Level = "info"
	return &c
}

// Load reads a YAML document from path and merges environment-variable
// overrides understood by a handful of deployment-critical knobs,
// mirroring the teacher's own Load/LoadFromEnv split.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, utils.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, utils.Wrap(err, "parse config")
		}
	}
	applyEnvOverrides(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromEnv loads the document named by N3_CONFIG, or the bare
// default configuration if unset.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("N3_CONFIG", ""))
}

func applyEnvOverrides(c *Config) {
	c.P2P.Port = uint16(utils.EnvOrDefaultInt("N3_P2P_PORT", int(c.P2P.Port)))
	c.RPC.Port = uint16(utils.EnvOrDefaultInt("N3_RPC_PORT", int(c.RPC.Port)))
	c.Storage.DataDir = utils.EnvOrDefault("N3_DATA_DIR", c.Storage.DataDir)
	c.Storage.Engine = utils.EnvOrDefault("N3_STORAGE_ENGINE", c.Storage.Engine)
	c.Network.ValidatorKey = utils.EnvOrDefault("N3_VALIDATOR_KEY", c.Network.ValidatorKey)
}

// Validate enforces §6's "all ports are 16-bit; any zero is rejected".
func (c *Config) Validate() error {
	if c.P2P.Port == 0 {
		return fmt.Errorf("config: p2p port must be nonzero")
	}
	if c.RPC.Port == 0 {
		return fmt.Errorf("config: rpc port must be nonzero")
	}
	if c.Network.ValidatorsCount <= 0 {
		return fmt.Errorf("config: validators_count must be positive")
	}
	if c.Network.CommitteeMembersCount < c.Network.ValidatorsCount {
		return fmt.Errorf("config: committee_members_count must be >= validators_count")
	}
	if c.Network.MillisPerBlock == 0 {
		return fmt.Errorf("config: millis_per_block must be positive")
	}
	return nil
}
