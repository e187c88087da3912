// Package wire implements the canonical binary format (§4.3) shared by
// every on-wire and on-disk type: little-endian fixed-width integers,
// length-prefixed byte strings, and a variable-length integer encoding.
// Decoding rejects any input whose re-serialization would differ from
// the input (non-minimal varints, trailing bytes) so that hashes stay
// stable across re-encodes (§6, §8 round-trip property).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/n3node/core/hash"
)

// ErrNonCanonical is returned when a varint or length prefix is not in
// its minimal encoding — decoding such a value is defined as failure per
// the wire codec's normative round-trip requirement.
var ErrNonCanonical = errors.New("wire: non-canonical encoding")

// ErrTrailingBytes is returned by Decode helpers that require a reader
// to be fully consumed.
var ErrTrailingBytes = errors.New("wire: trailing bytes after decode")

// Encodable types know how to write their canonical wire form.
type Encodable interface {
	EncodeWire(w *Writer) error
}

// Decodable types know how to read their canonical wire form.
type Decodable interface {
	DecodeWire(r *Reader) error
}

// Writer accumulates the canonical binary encoding of a sequence of
// values. Its own buffer writes never fail, so it has no error state.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteByte(b byte) error { w.buf = append(w.buf, b); return nil }

func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteVarInt writes the canonical variable-length integer encoding: a
// single byte for values <0xFD, a 0xFD tag + uint16 for values that fit
// 16 bits, 0xFE + uint32, 0xFF + uint64 — always the narrowest tag that
// fits, which is what makes the encoding canonical.
func (w *Writer) WriteVarInt(v uint64) {
	switch {
	case v < 0xFD:
		w.buf = append(w.buf, byte(v))
	case v <= 0xFFFF:
		w.buf = append(w.buf, 0xFD)
		w.WriteUint16(uint16(v))
	case v <= 0xFFFFFFFF:
		w.buf = append(w.buf, 0xFE)
		w.WriteUint32(uint32(v))
	default:
		w.buf = append(w.buf, 0xFF)
		w.WriteUint64(v)
	}
}

// WriteVarBytes writes a varint length prefix followed by the raw bytes.
func (w *Writer) WriteVarBytes(b []byte) {
	w.WriteVarInt(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteVarString writes a UTF-8 string as length-prefixed bytes.
func (w *Writer) WriteVarString(s string) { w.WriteVarBytes([]byte(s)) }

func (w *Writer) WriteFixedBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteFixedString writes s zero-padded/truncated to exactly n bytes,
// the NUL-padded fixed-width string convention NEF headers use.
func (w *Writer) WriteFixedString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteUint160(u hash.Uint160) { w.WriteFixedBytes(u.BytesLE()) }
func (w *Writer) WriteUint256(u hash.Uint256) { w.WriteFixedBytes(u.BytesLE()) }

// Reader consumes a canonical binary encoding, rejecting any
// non-canonical sub-encoding it encounters.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

// Done reports whether the reader has consumed every byte of its input;
// decoders that require no trailing bytes call this after decoding.
func (r *Reader) Done() bool { return r.err == nil && r.remaining() == 0 }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.fail(fmt.Errorf("wire: need %d bytes, have %d: %w", n, r.remaining(), io.ErrUnexpectedEOF))
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *Reader) ReadByte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool {
	b := r.ReadByte()
	if b > 1 {
		r.fail(ErrNonCanonical)
	}
	return b != 0
}

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

// ReadVarInt reads a variable-length integer, failing with
// ErrNonCanonical if a wider tag was used than the value required.
func (r *Reader) ReadVarInt() uint64 {
	tag := r.ReadByte()
	if r.err != nil {
		return 0
	}
	switch tag {
	case 0xFD:
		v := uint64(r.ReadUint16())
		if v < 0xFD {
			r.fail(ErrNonCanonical)
			return 0
		}
		return v
	case 0xFE:
		v := uint64(r.ReadUint32())
		if v <= 0xFFFF {
			r.fail(ErrNonCanonical)
			return 0
		}
		return v
	case 0xFF:
		v := r.ReadUint64()
		if v <= 0xFFFFFFFF {
			r.fail(ErrNonCanonical)
			return 0
		}
		return v
	default:
		return uint64(tag)
	}
}

// ReadVarBytes reads a varint-prefixed byte string, capped at max to
// bound allocation from adversarial input (max<=0 disables the cap).
func (r *Reader) ReadVarBytes(max int) []byte {
	n := r.ReadVarInt()
	if r.err != nil {
		return nil
	}
	if max > 0 && n > uint64(max) {
		r.fail(fmt.Errorf("wire: varbytes length %d exceeds max %d", n, max))
		return nil
	}
	return r.take(int(n))
}

func (r *Reader) ReadVarString(max int) string { return string(r.ReadVarBytes(max)) }

func (r *Reader) ReadFixedBytes(n int) []byte { return r.take(n) }

// ReadFixedString reads an n-byte fixed-width field and trims trailing
// NUL padding, the inverse of WriteFixedString.
func (r *Reader) ReadFixedString(n int) string {
	b := r.take(n)
	if b == nil {
		return ""
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func (r *Reader) ReadUint160() hash.Uint160 {
	b := r.take(hash.Uint160Size)
	if b == nil {
		return hash.Uint160{}
	}
	u, err := hash.Uint160FromBytes(b)
	if err != nil {
		r.fail(err)
	}
	return u
}

func (r *Reader) ReadUint256() hash.Uint256 {
	b := r.take(hash.Uint256Size)
	if b == nil {
		return hash.Uint256{}
	}
	u, err := hash.Uint256FromBytes(b)
	if err != nil {
		r.fail(err)
	}
	return u
}

// Marshal encodes v and returns the canonical bytes.
func Marshal(v Encodable) ([]byte, error) {
	w := NewWriter()
	if err := v.EncodeWire(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes v from b, requiring every byte of b to be consumed —
// any trailing byte is rejected per the codec's canonical-round-trip
// requirement.
func Unmarshal(b []byte, v Decodable) error {
	r := NewReader(b)
	if err := v.DecodeWire(r); err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	if !r.Done() {
		return ErrTrailingBytes
	}
	return nil
}
