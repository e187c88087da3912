package p2p

import (
	"testing"
	"time"

	"github.com/n3node/core/hash"
)

type recordingHandler struct {
	height   uint32
	received chan []byte
}

func (h *recordingHandler) HandleMessage(peer *Peer, command string, payload []byte) error {
	if command == CmdInv {
		h.received <- payload
	}
	return nil
}

func (h *recordingHandler) CurrentHeight() uint32 { return h.height }

func newTestNode(t *testing.T, magic uint32, handler Handler) *Node {
	t.Helper()
	n := NewNode(Config{
		Magic:          magic,
		UserAgent:      "/n3node-test/",
		ListenAddress:  "127.0.0.1:0",
		MaxConnections: 8,
	}, handler)
	if err := n.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func waitForPeerCount(t *testing.T, n *Node, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n.peerCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d peers, have %d", want, n.peerCount())
}

func waitForReady(t *testing.T, n *Node) *Peer {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range n.Peers() {
			if p.State() == StateReady {
				return p
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a ready peer")
	return nil
}

func TestNodeHandshakeBringsPeerReady(t *testing.T) {
	serverHandler := &recordingHandler{height: 5, received: make(chan []byte, 1)}
	clientHandler := &recordingHandler{height: 1, received: make(chan []byte, 1)}

	server := newTestNode(t, 0x334f454e, serverHandler)
	client := NewNode(Config{
		Magic:          0x334f454e,
		UserAgent:      "/n3node-test/",
		ListenAddress:  "127.0.0.1:0",
		MaxConnections: 8,
		SeedNodes:      []string{server.listener.Addr().String()},
	}, clientHandler)
	if err := client.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	client.DialSeeds()

	waitForPeerCount(t, server, 1)
	waitForPeerCount(t, client, 1)
	waitForReady(t, server)
	clientPeer := waitForReady(t, client)

	if clientPeer.Height() != serverHandler.height {
		t.Fatalf("client observed height %d, want %d", clientPeer.Height(), serverHandler.height)
	}
}

func TestNodeBroadcastSkipsKnownInventory(t *testing.T) {
	serverHandler := &recordingHandler{received: make(chan []byte, 1)}
	clientHandler := &recordingHandler{received: make(chan []byte, 1)}

	server := newTestNode(t, 1, serverHandler)
	client := NewNode(Config{
		Magic:          1,
		ListenAddress:  "127.0.0.1:0",
		MaxConnections: 8,
		SeedNodes:      []string{server.listener.Addr().String()},
	}, clientHandler)
	if err := client.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	client.DialSeeds()
	waitForReady(t, server)
	waitForReady(t, client)

	item := Inventory{Type: InvTypeTx, Hash: hash.Uint256{9, 9, 9}}
	server.Broadcast(item)

	select {
	case <-clientHandler.received:
	case <-time.After(2 * time.Second):
		t.Fatal("client never received broadcast inventory")
	}

	// Broadcasting the same item again should be suppressed: the server
	// already marked it known against this peer in the first Broadcast.
	server.Broadcast(item)
	select {
	case <-clientHandler.received:
		t.Fatal("expected second broadcast of known inventory to be suppressed")
	case <-time.After(200 * time.Millisecond):
	}
}
