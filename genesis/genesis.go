// Package genesis bootstraps a fresh chain: either a genesis Sumeragi round
// at height 0 when no blocks have been committed yet, or resuming an
// existing chain at its persisted tip and topology. The genesis round runs
// over the whole configured peer set; no single peer is designated to run
// it alone, so it is a one-peer round only when one peer is configured.
package genesis

import (
	"fmt"

	"github.com/tolelom/sumeragi/config"
	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/sumeragi"
	"github.com/tolelom/sumeragi/topology"
)

// Bootstrap seeds the world-state view with the genesis allocation (only
// when the chain has no tip yet) and starts the engine's first round. If the
// chain already has a tip (resuming from storage), the round picks up at
// tip.Header.Height+1 under a topology reshuffled from the tip's hash — the same
// derivation every peer reaches independently. Otherwise it starts the
// degenerate genesis round at height 0 under the canonical GenesisSeed,
// which for a single-peer set collapses to one peer signing its own block
// and immediately reaching quorum.
func Bootstrap(cfg *config.Config, engine *sumeragi.Engine, chain *core.Chain, wsv core.WorldStateView) error {
	peers, err := cfg.PeerSet()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if len(peers) == 0 {
		return fmt.Errorf("genesis: at least one peer is required")
	}

	if tip := chain.Tip(); tip != nil {
		topo := topology.New(peers, []byte(tip.Hash()), 0)
		engine.StartRound(tip.Header.Height+1, topo)
		return nil
	}

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		if err := wsv.SetAccount(&core.Account{Address: pubkeyHex, Balance: balance}); err != nil {
			return fmt.Errorf("genesis: seed account %s: %w", pubkeyHex, err)
		}
	}
	if err := wsv.Commit(); err != nil {
		return fmt.Errorf("genesis: commit alloc: %w", err)
	}

	topo := topology.New(peers, topology.GenesisSeed, 0)
	engine.StartRound(0, topo)
	return nil
}
