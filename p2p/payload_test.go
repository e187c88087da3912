package p2p

import (
	"testing"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/wire"
)

func encodeDecode(t *testing.T, enc interface {
	EncodeWire(w *wire.Writer) error
}, dec interface {
	DecodeWire(r *wire.Reader) error
}) {
	t.Helper()
	w := wire.NewWriter()
	if err := enc.EncodeWire(w); err != nil {
		t.Fatalf("EncodeWire: %v", err)
	}
	r := wire.NewReader(w.Bytes())
	if err := dec.DecodeWire(r); err != nil {
		t.Fatalf("DecodeWire: %v", err)
	}
}

func TestVersionPayloadRoundTrip(t *testing.T) {
	v := &VersionPayload{
		Magic:       0x334f454e,
		Version:     0,
		Timestamp:   1700000000,
		Nonce:       42,
		UserAgent:   "/n3node:0.1.0/",
		StartHeight: 12345,
		Relay:       true,
	}
	got := &VersionPayload{}
	encodeDecode(t, v, got)

	if got.Magic != v.Magic || got.Nonce != v.Nonce || got.UserAgent != v.UserAgent ||
		got.StartHeight != v.StartHeight || got.Relay != v.Relay {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestInvPayloadCapsItemCount(t *testing.T) {
	items := make([]Inventory, maxInventoryItems+50)
	for i := range items {
		items[i] = Inventory{Type: InvTypeTx, Hash: hash.Uint256{}}
	}
	p := &InvPayload{Items: items}

	got := &InvPayload{}
	encodeDecode(t, p, got)

	if len(got.Items) != maxInventoryItems {
		t.Fatalf("len(Items) = %d, want %d", len(got.Items), maxInventoryItems)
	}
}

func TestAddrPayloadRoundTrip(t *testing.T) {
	p := &AddrPayload{Addresses: []AddrEntry{
		{Timestamp: 1, Services: 1, Address: "127.0.0.1", Port: 30333},
		{Timestamp: 2, Services: 1, Address: "10.0.0.2", Port: 30333},
	}}
	got := &AddrPayload{}
	encodeDecode(t, p, got)

	if len(got.Addresses) != 2 || got.Addresses[1].Address != "10.0.0.2" {
		t.Fatalf("round trip mismatch: %+v", got.Addresses)
	}
}

func TestRejectPayloadRoundTrip(t *testing.T) {
	p := &RejectPayload{Command: CmdTx, Code: 1, Reason: "invalid witness"}
	got := &RejectPayload{}
	encodeDecode(t, p, got)

	if got.Command != p.Command || got.Code != p.Code || got.Reason != p.Reason {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}
