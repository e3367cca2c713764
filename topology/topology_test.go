package topology_test

import (
	"testing"

	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/peer"
	"github.com/tolelom/sumeragi/topology"
)

func makePeers(t *testing.T, n int) []peer.ID {
	t.Helper()
	peers := make([]peer.ID, n)
	for i := 0; i < n; i++ {
		_, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		peers[i] = peer.ID{Address: "addr", PublicKey: pub}
	}
	return peers
}

func TestSortPeersDeterministic(t *testing.T) {
	peers := makePeers(t, 7)
	seed := topology.GenesisSeed

	a := topology.SortPeers(peers, seed, 0)
	b := topology.SortPeers(peers, seed, 0)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("position %d differs between two identical calls", i)
		}
	}
}

func TestSortPeersRotatesByViewChangeCount(t *testing.T) {
	peers := makePeers(t, 7)
	seed := topology.GenesisSeed

	base := topology.SortPeers(peers, seed, 0)
	rotated := topology.SortPeers(peers, seed, 1)

	for i := range base {
		want := base[(i+1)%len(base)]
		if !rotated[i].Equal(want) {
			t.Fatalf("rotation mismatch at %d", i)
		}
	}
}

func TestNewQuorumSizesForSevenPeers(t *testing.T) {
	peers := makePeers(t, 7)
	topo := topology.New(peers, topology.GenesisSeed, 0)

	if topo.MaxFaulty() != 2 {
		t.Fatalf("expected f=2 for N=7, got %d", topo.MaxFaulty())
	}
	if topo.VotingPeerCount() != 7 {
		t.Fatalf("expected 3f+1=7 voting peers, got %d", topo.VotingPeerCount())
	}
	if topo.BlockSignatureQuorum() != 5 {
		t.Fatalf("expected 2f+1=5 quorum, got %d", topo.BlockSignatureQuorum())
	}
	if topo.ViewChangeQuorum() != 3 {
		t.Fatalf("expected f+1=3 view-change quorum, got %d", topo.ViewChangeQuorum())
	}
}

func TestNewDegradesBelowFourPeers(t *testing.T) {
	peers := makePeers(t, 3)
	topo := topology.New(peers, topology.GenesisSeed, 0)

	if topo.VotingPeerCount() != 3 {
		t.Fatalf("expected all 3 peers voting, got %d", topo.VotingPeerCount())
	}
	if topo.BlockSignatureQuorum() != 3 {
		t.Fatalf("expected quorum == N for small sets, got %d", topo.BlockSignatureQuorum())
	}
	if topo.ViewChangeQuorum() != 1 {
		t.Fatalf("expected view-change quorum 1 for small sets, got %d", topo.ViewChangeQuorum())
	}
}

func TestRoleOfAssignsLeaderAndProxyTail(t *testing.T) {
	peers := makePeers(t, 7)
	topo := topology.New(peers, topology.GenesisSeed, 0)

	leaderRole, ok := topo.RoleOf(topo.Leader())
	if !ok || leaderRole != topology.RoleLeader {
		t.Fatalf("expected leader role for topology's own Leader()")
	}
	tailRole, ok := topo.RoleOf(topo.ProxyTail())
	if !ok || tailRole != topology.RoleProxyTail {
		t.Fatalf("expected proxy_tail role for topology's own ProxyTail()")
	}
}

func TestRotateViewChangeKeepsPermutationIdentity(t *testing.T) {
	peers := makePeers(t, 7)
	topo := topology.New(peers, topology.GenesisSeed, 0)
	rotated := topo.RotateViewChange()

	if rotated.ViewChangeCount() != 1 {
		t.Fatalf("expected view_change_count 1, got %d", rotated.ViewChangeCount())
	}
	if string(rotated.Seed()) != string(topo.Seed()) {
		t.Error("RotateViewChange must keep the same seed")
	}
}

func TestReshuffleResetsViewChangeCountAndReseeds(t *testing.T) {
	peers := makePeers(t, 7)
	topo := topology.New(peers, topology.GenesisSeed, 2)
	newSeed := []byte("some-block-hash-bytes-000000000")
	reshuffled := topo.Reshuffle(topo.RawPeerSet(), newSeed)

	if reshuffled.ViewChangeCount() != 0 {
		t.Fatalf("expected view_change_count reset to 0, got %d", reshuffled.ViewChangeCount())
	}
	if string(reshuffled.Seed()) != string(newSeed) {
		t.Error("expected Reshuffle to adopt the new seed")
	}
}
