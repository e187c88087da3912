// Package consensus implements the dBFT agreement (§4.11): one primary
// proposes a block per view, backups respond and commit, views advance
// on timeout via ChangeView, and a late or restarted validator catches
// up through Recovery. It sits between the mempool (source of
// candidate transactions), the blockchain (sink for the agreed block)
// and p2p (transport for ConsensusPayload), exactly as the teacher's
// own core/consensus.go sits between its txPool/ledger/network adapters.
package consensus

import (
	"fmt"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/wire"
)

// MessageType tags which variant of ConsensusPayload.Body a payload
// carries.
type MessageType byte

const (
	MessageTypePrepareRequest MessageType = iota
	MessageTypePrepareResponse
	MessageTypeChangeView
	MessageTypeCommit
	MessageTypeRecoveryRequest
	MessageTypeRecoveryMessage
)

func (t MessageType) String() string {
	switch t {
	case MessageTypePrepareRequest:
		return "PrepareRequest"
	case MessageTypePrepareResponse:
		return "PrepareResponse"
	case MessageTypeChangeView:
		return "ChangeView"
	case MessageTypeCommit:
		return "Commit"
	case MessageTypeRecoveryRequest:
		return "RecoveryRequest"
	case MessageTypeRecoveryMessage:
		return "RecoveryMessage"
	default:
		return "Unknown"
	}
}

// ChangeViewReason records why a validator is asking to advance the
// view, carried for diagnostics only — the state machine treats every
// reason identically.
type ChangeViewReason byte

const (
	ReasonTimeout ChangeViewReason = iota
	ReasonChangeAgreement
	ReasonTxNotFound
	ReasonTxInvalid
	ReasonBlockRejected
)

// PrepareRequestData is the primary's proposal for the current view:
// the block metadata and the ordered set of transaction hashes it wants
// included, per §4.11's "PrepareRequest".
type PrepareRequestData struct {
	Version           uint32
	PrevHash          hash.Uint256
	Timestamp         uint64
	Nonce             uint64
	TransactionHashes []hash.Uint256
}

func (p *PrepareRequestData) encode(w *wire.Writer) {
	w.WriteUint32(p.Version)
	w.WriteUint256(p.PrevHash)
	w.WriteUint64(p.Timestamp)
	w.WriteUint64(p.Nonce)
	w.WriteVarInt(uint64(len(p.TransactionHashes)))
	for _, h := range p.TransactionHashes {
		w.WriteUint256(h)
	}
}

func (p *PrepareRequestData) decode(r *wire.Reader) {
	p.Version = r.ReadUint32()
	p.PrevHash = r.ReadUint256()
	p.Timestamp = r.ReadUint64()
	p.Nonce = r.ReadUint64()
	n := r.ReadVarInt()
	p.TransactionHashes = make([]hash.Uint256, n)
	for i := range p.TransactionHashes {
		p.TransactionHashes[i] = r.ReadUint256()
	}
}

// PrepareResponseData is a backup's acceptance of the PrepareRequest it
// hashes, without re-transmitting the proposal itself.
type PrepareResponseData struct {
	PreparationHash hash.Uint256
}

func (p *PrepareResponseData) encode(w *wire.Writer) { w.WriteUint256(p.PreparationHash) }
func (p *PrepareResponseData) decode(r *wire.Reader)  { p.PreparationHash = r.ReadUint256() }

// ChangeViewData asks every recipient to move to NewViewNumber.
type ChangeViewData struct {
	NewViewNumber byte
	Reason        ChangeViewReason
	Timestamp     uint64
}

func (c *ChangeViewData) encode(w *wire.Writer) {
	w.WriteByte(c.NewViewNumber)
	w.WriteByte(byte(c.Reason))
	w.WriteUint64(c.Timestamp)
}

func (c *ChangeViewData) decode(r *wire.Reader) {
	c.NewViewNumber = r.ReadByte()
	c.Reason = ChangeViewReason(r.ReadByte())
	c.Timestamp = r.ReadUint64()
}

// CommitData carries the sender's signature over the block that would
// result from the current view's PrepareRequest — the signature a
// committed block's multisig witness is assembled from, per §4.11
// "Witness synthesis".
type CommitData struct {
	Signature []byte
}

func (c *CommitData) encode(w *wire.Writer) { w.WriteVarBytes(c.Signature) }
func (c *CommitData) decode(r *wire.Reader)  { c.Signature = r.ReadVarBytes(128) }

// RecoveryRequestData asks peers to resend their current view's state;
// the timestamp is informational only (duplicate-suppression uses the
// payload hash, not this field).
type RecoveryRequestData struct {
	Timestamp uint64
}

func (r2 *RecoveryRequestData) encode(w *wire.Writer) { w.WriteUint64(r2.Timestamp) }
func (r2 *RecoveryRequestData) decode(r *wire.Reader)  { r2.Timestamp = r.ReadUint64() }

// RecoveryMessageData answers a RecoveryRequest with everything the
// responder has collected for the current (height, view): the last
// PrepareRequest it saw (if any), which validators it has a
// PrepareResponse from, every Commit signature collected so far, and
// which validators have asked to change to which view. A recovering
// validator rebuilds its local viewContext from this rather than
// replaying each original signed message, a deliberate simplification
// of §4.11's Recovery over re-wrapping every original payload.
type RecoveryMessageData struct {
	PrepareRequest      *PrepareRequestData
	PrepareRequestHash  hash.Uint256
	HasPrepareRequest    bool
	PreparationResponses []byte // validator indexes that sent PrepareResponse
	CommitSignatures     map[byte][]byte
	ChangeViewRequests   map[byte]byte // validator index -> requested new view
}

func (r2 *RecoveryMessageData) encode(w *wire.Writer) {
	w.WriteBool(r2.HasPrepareRequest)
	if r2.HasPrepareRequest {
		r2.PrepareRequest.encode(w)
	}
	w.WriteUint256(r2.PrepareRequestHash)

	w.WriteVarInt(uint64(len(r2.PreparationResponses)))
	for _, idx := range r2.PreparationResponses {
		w.WriteByte(idx)
	}

	w.WriteVarInt(uint64(len(r2.CommitSignatures)))
	for idx, sig := range r2.CommitSignatures {
		w.WriteByte(idx)
		w.WriteVarBytes(sig)
	}

	w.WriteVarInt(uint64(len(r2.ChangeViewRequests)))
	for idx, view := range r2.ChangeViewRequests {
		w.WriteByte(idx)
		w.WriteByte(view)
	}
}

func (r2 *RecoveryMessageData) decode(r *wire.Reader) {
	r2.HasPrepareRequest = r.ReadBool()
	if r2.HasPrepareRequest {
		r2.PrepareRequest = &PrepareRequestData{}
		r2.PrepareRequest.decode(r)
	}
	r2.PrepareRequestHash = r.ReadUint256()

	n := r.ReadVarInt()
	r2.PreparationResponses = make([]byte, n)
	for i := range r2.PreparationResponses {
		r2.PreparationResponses[i] = r.ReadByte()
	}

	cn := r.ReadVarInt()
	r2.CommitSignatures = make(map[byte][]byte, cn)
	for i := uint64(0); i < cn; i++ {
		idx := r.ReadByte()
		r2.CommitSignatures[idx] = r.ReadVarBytes(128)
	}

	vn := r.ReadVarInt()
	r2.ChangeViewRequests = make(map[byte]byte, vn)
	for i := uint64(0); i < vn; i++ {
		idx := r.ReadByte()
		r2.ChangeViewRequests[idx] = r.ReadByte()
	}
}

// Payload is the single envelope every consensus message travels in,
// mirroring the teacher's InboundMsg/topic-tagged broadcast but typed
// per §4.11 instead of carrying an untyped interface{} payload.
type Payload struct {
	BlockIndex     uint32
	ValidatorIndex byte
	ViewNumber     byte
	Type           MessageType

	PrepareRequest  *PrepareRequestData
	PrepareResponse *PrepareResponseData
	ChangeView      *ChangeViewData
	Commit          *CommitData
	RecoveryRequest *RecoveryRequestData
	RecoveryMessage *RecoveryMessageData

	Signature []byte

	cachedHash *hash.Uint256
}

func (p *Payload) encodeUnsigned(w *wire.Writer) error {
	w.WriteUint32(p.BlockIndex)
	w.WriteByte(p.ValidatorIndex)
	w.WriteByte(p.ViewNumber)
	w.WriteByte(byte(p.Type))
	switch p.Type {
	case MessageTypePrepareRequest:
		if p.PrepareRequest == nil {
			return fmt.Errorf("consensus: PrepareRequest payload missing body")
		}
		p.PrepareRequest.encode(w)
	case MessageTypePrepareResponse:
		if p.PrepareResponse == nil {
			return fmt.Errorf("consensus: PrepareResponse payload missing body")
		}
		p.PrepareResponse.encode(w)
	case MessageTypeChangeView:
		if p.ChangeView == nil {
			return fmt.Errorf("consensus: ChangeView payload missing body")
		}
		p.ChangeView.encode(w)
	case MessageTypeCommit:
		if p.Commit == nil {
			return fmt.Errorf("consensus: Commit payload missing body")
		}
		p.Commit.encode(w)
	case MessageTypeRecoveryRequest:
		if p.RecoveryRequest == nil {
			return fmt.Errorf("consensus: RecoveryRequest payload missing body")
		}
		p.RecoveryRequest.encode(w)
	case MessageTypeRecoveryMessage:
		if p.RecoveryMessage == nil {
			return fmt.Errorf("consensus: RecoveryMessage payload missing body")
		}
		p.RecoveryMessage.encode(w)
	default:
		return fmt.Errorf("consensus: unknown message type %d", p.Type)
	}
	return nil
}

func (p *Payload) EncodeWire(w *wire.Writer) error {
	if err := p.encodeUnsigned(w); err != nil {
		return err
	}
	w.WriteVarBytes(p.Signature)
	return nil
}

func (p *Payload) DecodeWire(r *wire.Reader) error {
	p.BlockIndex = r.ReadUint32()
	p.ValidatorIndex = r.ReadByte()
	p.ViewNumber = r.ReadByte()
	p.Type = MessageType(r.ReadByte())
	switch p.Type {
	case MessageTypePrepareRequest:
		p.PrepareRequest = &PrepareRequestData{}
		p.PrepareRequest.decode(r)
	case MessageTypePrepareResponse:
		p.PrepareResponse = &PrepareResponseData{}
		p.PrepareResponse.decode(r)
	case MessageTypeChangeView:
		p.ChangeView = &ChangeViewData{}
		p.ChangeView.decode(r)
	case MessageTypeCommit:
		p.Commit = &CommitData{}
		p.Commit.decode(r)
	case MessageTypeRecoveryRequest:
		p.RecoveryRequest = &RecoveryRequestData{}
		p.RecoveryRequest.decode(r)
	case MessageTypeRecoveryMessage:
		p.RecoveryMessage = &RecoveryMessageData{}
		p.RecoveryMessage.decode(r)
	default:
		return fmt.Errorf("consensus: unknown message type %d", p.Type)
	}
	if err := r.Err(); err != nil {
		return err
	}
	p.Signature = r.ReadVarBytes(128)
	return r.Err()
}

// Hash is hash256 of the unsigned encoding: the key duplicate-message
// suppression and Commit/PrepareResponse cross-references use.
func (p *Payload) Hash() hash.Uint256 {
	if p.cachedHash != nil {
		return *p.cachedHash
	}
	w := wire.NewWriter()
	_ = p.encodeUnsigned(w)
	h := hash.Hash256(w.Bytes())
	p.cachedHash = &h
	return h
}

// Marshal/Unmarshal adapt Payload to the raw []byte p2p.Node.BroadcastConsensus
// and blocksync's delegation hook carry.
func Marshal(p *Payload) []byte {
	w := wire.NewWriter()
	_ = p.EncodeWire(w)
	return w.Bytes()
}

func Unmarshal(b []byte) (*Payload, error) {
	p := &Payload{}
	if err := p.DecodeWire(wire.NewReader(b)); err != nil {
		return nil, err
	}
	return p, nil
}
