package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/peer"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert" mapstructure:"ca_cert"`
	NodeCert string `json:"node_cert" mapstructure:"node_cert"`
	NodeKey  string `json:"node_key" mapstructure:"node_key"`
}

// PeerEntry is one member of the trusted peer set that forms the Sumeragi
// topology: an address to dial paired with the pubkey that identifies it.
type PeerEntry struct {
	Address   string `json:"address" mapstructure:"address"`
	PublicKey string `json:"public_key" mapstructure:"public_key"` // hex
}

// GenesisConfig describes the chain's initial peer set and state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id" mapstructure:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc" mapstructure:"alloc"` // pubkey hex -> initial balance
}

// Config holds all node configuration, loaded through viper from defaults,
// an optional config file, and SUMERAGI_-prefixed environment variables, in
// that order of increasing precedence.
type Config struct {
	NodeID      string      `json:"node_id" mapstructure:"node_id"`
	DataDir     string      `json:"data_dir" mapstructure:"data_dir"`
	RPCPort     int         `json:"rpc_port" mapstructure:"rpc_port"`
	P2PPort     int         `json:"p2p_port" mapstructure:"p2p_port"`
	MaxBlockTxs int         `json:"max_block_txs" mapstructure:"max_block_txs"`
	Peers       []PeerEntry `json:"peers" mapstructure:"peers"` // the trusted peer set forming the topology

	// NTopologyShiftsBeforeReshuffle bounds how many consecutive
	// RotateViewChange rotations happen before a full ForceReshuffle instead
	// (see topology.Topology.ForceReshuffle). 0 means never force: re-sort
	// only happens on commit.
	NTopologyShiftsBeforeReshuffle uint32 `json:"n_topology_shifts_before_reshuffle" mapstructure:"n_topology_shifts_before_reshuffle"`

	Genesis      GenesisConfig `json:"genesis" mapstructure:"genesis"`
	TLS          *TLSConfig    `json:"tls,omitempty" mapstructure:"tls"`
	RPCAuthToken string        `json:"rpc_auth_token,omitempty" mapstructure:"rpc_auth_token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "node0")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("rpc_port", 8545)
	v.SetDefault("p2p_port", 30303)
	v.SetDefault("max_block_txs", 500)
	v.SetDefault("genesis.chain_id", "sumeragi-dev")
}

// Load reads configuration from path (if non-empty), layering
// SUMERAGI_-prefixed environment variables on top, and validates the
// result. An empty path means environment variables and defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUMERAGI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("peers list must not be empty")
	}
	for i, p := range c.Peers {
		if p.Address == "" {
			return fmt.Errorf("peers[%d]: address must not be empty", i)
		}
		b, err := hex.DecodeString(p.PublicKey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("peers[%d]: public_key must be 64-char hex (32 bytes ed25519 pubkey), got %q", i, p.PublicKey)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// PeerSet decodes c.Peers into the peer.ID values the topology and genesis
// packages operate on. Validate must have already checked the hex encoding.
func (c *Config) PeerSet() ([]peer.ID, error) {
	ids := make([]peer.ID, 0, len(c.Peers))
	for _, p := range c.Peers {
		pub, err := crypto.PubKeyFromHex(p.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", p.Address, err)
		}
		ids = append(ids, peer.ID{Address: p.Address, PublicKey: pub})
	}
	return ids, nil
}

// Save writes the config to path as formatted JSON, for a node to hand-edit
// and re-Load later.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
