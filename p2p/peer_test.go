package p2p

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/n3node/core/hash"
)

func pipePeer(t *testing.T) (*Peer, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	p := NewPeer(server, &Codec{Magic: 1})
	p.Start()
	t.Cleanup(func() { p.Disconnect(nil) })
	return p, client
}

func TestPeerKnownInventory(t *testing.T) {
	p, _ := pipePeer(t)
	h := hash.Uint256{1, 2, 3}

	if p.KnowsInventory(h) {
		t.Fatal("fresh peer should not know inventory yet")
	}
	p.MarkKnown(h)
	if !p.KnowsInventory(h) {
		t.Fatal("expected inventory to be known after MarkKnown")
	}
}

func TestPeerSendDeliversOverConnection(t *testing.T) {
	p, client := pipePeer(t)

	done := make(chan error, 1)
	go func() {
		codec := &Codec{Magic: 1}
		_, payload, err := codec.ReadMessage(client)
		if err != nil {
			done <- err
			return
		}
		if string(payload) != "ping-body" {
			done <- fmt.Errorf("payload = %q", payload)
			return
		}
		done <- nil
	}()

	if err := p.Send(CmdPing, []byte("ping-body")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("reader goroutine: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message delivery")
	}
}

func TestPeerDisconnectIsIdempotent(t *testing.T) {
	p, _ := pipePeer(t)
	p.Disconnect(nil)
	p.Disconnect(nil) // must not panic on double-close

	select {
	case <-p.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
	if p.State() != StateDisconnected {
		t.Fatalf("state = %v, want %v", p.State(), StateDisconnected)
	}
}
