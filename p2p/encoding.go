package p2p

import "github.com/n3node/core/wire"

// wireCodec is implemented by every payload type in this package,
// mirroring the wire package's own EncodeWire/DecodeWire convention.
type wireCodec interface {
	EncodeWire(w *wire.Writer) error
}

func mustMarshal(v wireCodec) []byte {
	w := wire.NewWriter()
	// Payload encoders in this package never return an error; the
	// interface only carries one for symmetry with DecodeWire.
	_ = v.EncodeWire(w)
	return w.Bytes()
}

func marshalVersion(v *VersionPayload) ([]byte, error) {
	w := wire.NewWriter()
	if err := v.EncodeWire(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func unmarshalVersion(b []byte) (*VersionPayload, error) {
	r := wire.NewReader(b)
	v := &VersionPayload{}
	if err := v.DecodeWire(r); err != nil {
		return nil, err
	}
	return v, nil
}
