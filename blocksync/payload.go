// Package blocksync implements the header-first synchronization
// pipeline of §4.10: tracking peer heights, requesting headers then
// bodies, buffering out-of-order arrivals as orphans, and handing
// contiguous blocks to the ledger's apply pipeline in order.
package blocksync

import (
	"github.com/n3node/core/ledger"
	"github.com/n3node/core/wire"
)

// maxHeadersPerMessage bounds a single Headers response, mirroring
// neo-go's own batch size for this exchange.
const maxHeadersPerMessage = 2000

// HeadersPayload carries a batch of headers in response to GetHeaders,
// the body half of header-first sync (the request half reuses
// p2p.GetBlocksPayload's {HashStart, Count} shape).
type HeadersPayload struct {
	Headers []*ledger.Header
}

func (p *HeadersPayload) EncodeWire(w *wire.Writer) error {
	w.WriteVarInt(uint64(len(p.Headers)))
	for _, h := range p.Headers {
		if err := h.EncodeWire(w); err != nil {
			return err
		}
	}
	return nil
}

func (p *HeadersPayload) DecodeWire(r *wire.Reader) error {
	n := r.ReadVarInt()
	if n > maxHeadersPerMessage {
		n = maxHeadersPerMessage
	}
	p.Headers = make([]*ledger.Header, n)
	for i := range p.Headers {
		h := &ledger.Header{}
		if err := h.DecodeWire(r); err != nil {
			return err
		}
		p.Headers[i] = h
	}
	return r.Err()
}

func marshalHeaders(p *HeadersPayload) []byte {
	w := wire.NewWriter()
	p.EncodeWire(w)
	return w.Bytes()
}
