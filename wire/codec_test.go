package wire

import (
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xFC, 0xFD, 0xFFFF, 0x10000, 0xFFFFFFFF, 0x100000000, 1 << 63}
	for _, v := range cases {
		w := NewWriter()
		w.WriteVarInt(v)
		r := NewReader(w.Bytes())
		got := r.ReadVarInt()
		if r.Err() != nil {
			t.Fatalf("value %d: unexpected error %v", v, r.Err())
		}
		if got != v {
			t.Fatalf("value %d round-tripped as %d", v, got)
		}
	}
}

func TestVarIntRejectsNonCanonical(t *testing.T) {
	// 0xFD tag followed by a value that fits in one byte: non-canonical.
	b := []byte{0xFD, 0x05, 0x00}
	r := NewReader(b)
	r.ReadVarInt()
	if r.Err() != ErrNonCanonical {
		t.Fatalf("expected ErrNonCanonical, got %v", r.Err())
	}
}

func TestVarBytesRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox")
	w := NewWriter()
	w.WriteVarBytes(payload)
	r := NewReader(w.Bytes())
	got := r.ReadVarBytes(0)
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(42)
	buf := append(w.Bytes(), 0xFF)

	v := &fakeUint32{}
	if err := Unmarshal(buf, v); err != ErrTrailingBytes {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

type fakeUint32 struct{ v uint32 }

func (f *fakeUint32) EncodeWire(w *Writer) error { w.WriteUint32(f.v); return nil }
func (f *fakeUint32) DecodeWire(r *Reader) error  { f.v = r.ReadUint32(); return nil }
