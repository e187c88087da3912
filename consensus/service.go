package consensus

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
)

// Chain is the slice of ledger.Blockchain the consensus service depends
// on, decoupling it from the concrete type the way the teacher's own
// txPool/networkAdapter/securityAdapter/authorityAdapter interfaces
// decouple core/consensus.go from concrete ledger/p2p types.
type Chain interface {
	Height() uint32
	CurrentHash() hash.Uint256
	Persist(block *ledger.Block) ([]ledger.ApplicationLogEntry, error)
}

// Pool is the slice of mempool.Mempool consensus needs: pull candidate
// transactions for a proposal, and look one up by hash once another
// validator's PrepareRequest names it.
type Pool interface {
	GetSorted(max int) []*ledger.Transaction
	Get(h hash.Uint256) (*ledger.Transaction, bool)
}

// Broadcaster is the slice of p2p.Node consensus needs: flood a
// payload to every ready peer, bypassing inventory dedup since
// consensus traffic is small, latency-sensitive and already
// self-deduplicated by Payload.Hash.
type Broadcaster interface {
	BroadcastConsensus(payload []byte)
}

// Config bundles everything a Service needs to run one committee's
// agreement: the committee itself, this node's key (nil for a
// non-validating observer that only relays and applies), and its
// upstream/downstream adapters.
type Config struct {
	Validators [][]byte // compressed pubkeys; any order, sorted internally
	PrivateKey []byte   // nil => observer: never primary or backup, only relays/recovers
	Curve      hash.Curve

	BlockTime     time.Duration
	MaxTxPerBlock int

	Chain     Chain
	Pool      Pool
	Broadcast Broadcaster
}

// Service runs the dBFT state machine described in §4.11: per-height,
// per-view proposal/response/commit rounds with a doubling view
// timeout and ChangeView/Recovery for liveness, generalizing the
// teacher's ticker-driven subBlockLoop/blockLoop (core/consensus.go)
// into a single event loop selecting over inbound payloads and a view
// timer instead of two independent tickers.
type Service struct {
	cfg        Config
	validators [][]byte
	n, f, m    int
	index      int // -1 if this node does not hold a validator key

	mu   sync.Mutex
	view *viewContext
	// myCommits remembers, per block height, the Commit this node has
	// already broadcast — the safety invariant (§4.11) that a validator
	// never signs a second, different block at the same height forbids
	// ever overwriting an entry here once set.
	myCommits map[uint32]*Payload
	seen      map[hash.Uint256]struct{}

	timer *time.Timer

	inbox   chan *Payload
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	log *logrus.Entry
}

// NewService validates the committee and locates this node's own
// validator index (-1 meaning "observer": it still tracks and relays
// consensus traffic but never proposes, responds or commits).
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Validators) == 0 {
		return nil, fmt.Errorf("consensus: empty validator set")
	}
	if cfg.Chain == nil || cfg.Pool == nil || cfg.Broadcast == nil {
		return nil, fmt.Errorf("consensus: Chain, Pool and Broadcast are required")
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 15 * time.Second
	}
	if cfg.MaxTxPerBlock <= 0 {
		cfg.MaxTxPerBlock = 512
	}

	validators := SortPubKeys(cfg.Validators)
	n := len(validators)
	f, m := Quorum(n)

	index := -1
	if len(cfg.PrivateKey) > 0 {
		pub, err := hash.ECDSAPublicKey(cfg.Curve, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("consensus: deriving public key: %w", err)
		}
		for i, v := range validators {
			if bytes.Equal(v, pub) {
				index = i
				break
			}
		}
	}

	return &Service{
		cfg:        cfg,
		validators: validators,
		n:          n,
		f:          f,
		m:          m,
		index:      index,
		myCommits:  make(map[uint32]*Payload),
		seen:       make(map[hash.Uint256]struct{}),
		inbox:      make(chan *Payload, 256),
		stop:       make(chan struct{}),
		log:        logrus.WithField("component", "consensus"),
	}, nil
}

// IsValidator reports whether this node holds one of the committee's keys.
func (s *Service) IsValidator() bool { return s.index >= 0 }

// Start begins proposing/voting at the chain's current height + 1 and
// runs until Stop is called.
func (s *Service) Start() error {
	s.mu.Lock()
	height := s.cfg.Chain.Height() + 1
	s.startViewLocked(height, 0)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.loop()
	go s.recheckLoop()
	s.log.WithFields(logrus.Fields{"validators": s.n, "quorum": s.m, "index": s.index}).Info("consensus started")
	return nil
}

func (s *Service) Stop() {
	s.stopped.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		timerC := s.timer.C
		s.mu.Unlock()

		select {
		case <-s.stop:
			return
		case p := <-s.inbox:
			s.mu.Lock()
			s.handlePayloadLocked(p)
			s.mu.Unlock()
		case <-timerC:
			s.mu.Lock()
			s.onTimeoutLocked()
			s.mu.Unlock()
		}
	}
}

// recheckLoop periodically re-evaluates prepare/commit quorum so that
// transactions arriving via ordinary mempool relay (rather than a
// dedicated per-hash fetch protocol) unblock a stalled backup that was
// missing part of the proposed transaction set.
func (s *Service) recheckLoop() {
	defer s.wg.Done()
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.mu.Lock()
			s.fillMissingTransactionsLocked()
			s.checkPrepareQuorumLocked()
			s.mu.Unlock()
		}
	}
}

// HandlePayload decodes and queues one inbound consensus message,
// called from blocksync's delegation hook for p2p.CmdConsensus
// traffic. A full inbox drops the message rather than blocking the
// p2p read loop — consensus payloads are small and self-repairing via
// RecoveryRequest, so a drop under load is recoverable.
func (s *Service) HandlePayload(raw []byte) error {
	p, err := Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("consensus: decode payload: %w", err)
	}
	select {
	case s.inbox <- p:
	default:
		s.log.Warn("consensus: inbox full, dropping payload")
	}
	return nil
}

func (s *Service) primaryIndex(height uint32, view byte) byte {
	return byte(((int(height)-int(view))%s.n + s.n) % s.n)
}

func (s *Service) timeoutFor(view byte) time.Duration {
	shift := view
	if shift > 20 {
		shift = 20 // avoids an absurd multi-year sleep at pathological view numbers
	}
	return s.cfg.BlockTime << shift
}

func (s *Service) resetTimerLocked(view byte) {
	d := s.timeoutFor(view)
	if s.timer == nil {
		s.timer = time.NewTimer(d)
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(d)
}

// startViewLocked begins a fresh (height, view): a new height always
// starts one, and a successful ChangeView quorum starts one at the
// same height with view+1.
func (s *Service) startViewLocked(height uint32, view byte) {
	primary := s.primaryIndex(height, view)
	s.view = newViewContext(height, view, primary)
	s.resetTimerLocked(view)

	s.log.WithFields(logrus.Fields{"height": height, "view": view, "primary": primary}).Info("starting view")

	if commit, ok := s.myCommits[height]; ok && commit.ViewNumber == view {
		// Rejoining a view we already committed in (e.g. after a Recovery
		// round-trip) — resend rather than propose/respond again.
		s.view.phase = PhaseCommitSent
		s.view.commits[byte(s.index)] = commit
		s.cfg.Broadcast.BroadcastConsensus(Marshal(commit))
		return
	}

	if s.index >= 0 && int(primary) == s.index {
		s.sendPrepareRequestLocked()
	}
}

func (s *Service) newPayload(t MessageType) *Payload {
	return &Payload{
		BlockIndex:     s.view.blockIndex,
		ValidatorIndex: byte(s.index),
		ViewNumber:     s.view.viewNumber,
		Type:           t,
	}
}

func (s *Service) signAndBroadcastLocked(p *Payload) {
	msg := p.Hash().BytesLE()
	sig, err := hash.ECDSASign(s.cfg.Curve, s.cfg.PrivateKey, msg)
	if err != nil {
		s.log.WithError(err).Error("consensus: signing payload")
		return
	}
	p.Signature = sig
	s.seen[p.Hash()] = struct{}{}
	s.cfg.Broadcast.BroadcastConsensus(Marshal(p))
}

func (s *Service) sendPrepareRequestLocked() {
	if s.index < 0 {
		return
	}
	txs := s.cfg.Pool.GetSorted(s.cfg.MaxTxPerBlock)
	hashes := make([]hash.Uint256, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}

	pr := &PrepareRequestData{
		Version:           0,
		PrevHash:          s.cfg.Chain.CurrentHash(),
		Timestamp:         uint64(time.Now().UnixMilli()),
		Nonce:             rand.Uint64(),
		TransactionHashes: hashes,
	}
	payload := s.newPayload(MessageTypePrepareRequest)
	payload.PrepareRequest = pr
	s.signAndBroadcastLocked(payload)

	s.view.prepareRequest = payload
	s.view.prepareRequestHash = payload.Hash()
	s.view.haveRequest = true
	s.view.transactionHashes = hashes
	s.view.timestamp = pr.Timestamp
	s.view.nonce = pr.Nonce
	for i, tx := range txs {
		s.view.receivedTx[hashes[i]] = tx
	}
	s.view.prepareResponses[s.view.primaryIndex] = payload
	s.view.phase = PhaseRequestSent

	s.checkPrepareQuorumLocked()
}

func (s *Service) buildCandidateBlockLocked(pr *PrepareRequestData, primaryIdx byte, txs []*ledger.Transaction) *ledger.Block {
	hdr := ledger.Header{
		Version:       pr.Version,
		PrevHash:      pr.PrevHash,
		Timestamp:     pr.Timestamp,
		Nonce:         pr.Nonce,
		Index:         s.view.blockIndex,
		PrimaryIndex:  primaryIdx,
		NextConsensus: ConsensusAddress(s.validators),
	}
	block := &ledger.Block{Header: hdr, Transactions: txs}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()
	return block
}

func (s *Service) fillMissingTransactionsLocked() {
	if s.view == nil || !s.view.haveRequest {
		return
	}
	for _, h := range s.view.transactionHashes {
		if _, ok := s.view.receivedTx[h]; ok {
			continue
		}
		if tx, ok := s.cfg.Pool.Get(h); ok {
			s.view.receivedTx[h] = tx
		}
	}
}

func (s *Service) handlePayloadLocked(p *Payload) {
	if s.view == nil || p.BlockIndex != s.view.blockIndex {
		return // belongs to a height we've already moved past or not reached
	}
	if int(p.ValidatorIndex) >= s.n {
		return
	}
	if _, dup := s.seen[p.Hash()]; dup {
		return
	}
	pub := s.validators[p.ValidatorIndex]
	if !hash.ECDSAVerify(s.cfg.Curve, pub, p.Hash().BytesLE(), p.Signature) {
		s.log.WithField("validator", p.ValidatorIndex).Warn("consensus: bad payload signature")
		return
	}
	s.seen[p.Hash()] = struct{}{}

	switch p.Type {
	case MessageTypePrepareRequest:
		s.applyPrepareRequestLocked(p)
	case MessageTypePrepareResponse:
		s.applyPrepareResponseLocked(p)
	case MessageTypeChangeView:
		s.applyChangeViewLocked(p)
	case MessageTypeCommit:
		s.applyCommitLocked(p)
	case MessageTypeRecoveryRequest:
		s.applyRecoveryRequestLocked(p)
	case MessageTypeRecoveryMessage:
		s.applyRecoveryMessageLocked(p)
	}
}

func (s *Service) applyPrepareRequestLocked(p *Payload) {
	if p.ViewNumber != s.view.viewNumber || p.PrepareRequest == nil {
		return
	}
	if p.ValidatorIndex != s.view.primaryIndex {
		s.log.WithField("validator", p.ValidatorIndex).Warn("consensus: PrepareRequest from non-primary")
		return
	}
	if s.view.haveRequest {
		return
	}

	s.view.prepareRequest = p
	s.view.prepareRequestHash = p.Hash()
	s.view.haveRequest = true
	s.view.transactionHashes = p.PrepareRequest.TransactionHashes
	s.view.timestamp = p.PrepareRequest.Timestamp
	s.view.nonce = p.PrepareRequest.Nonce
	s.view.prepareResponses[p.ValidatorIndex] = p
	s.fillMissingTransactionsLocked()

	if s.view.phase == PhaseInitial {
		s.view.phase = PhaseRequestReceived
	}

	if s.index >= 0 && int(s.view.primaryIndex) != s.index {
		s.sendPrepareResponseLocked()
	}
	s.checkPrepareQuorumLocked()
}

func (s *Service) sendPrepareResponseLocked() {
	payload := s.newPayload(MessageTypePrepareResponse)
	payload.PrepareResponse = &PrepareResponseData{PreparationHash: s.view.prepareRequestHash}
	s.signAndBroadcastLocked(payload)
	s.view.prepareResponses[byte(s.index)] = payload
}

func (s *Service) applyPrepareResponseLocked(p *Payload) {
	if p.ViewNumber != s.view.viewNumber || p.PrepareResponse == nil {
		return
	}
	if s.view.haveRequest && p.PrepareResponse.PreparationHash != s.view.prepareRequestHash {
		s.log.WithField("validator", p.ValidatorIndex).Warn("consensus: PrepareResponse for a different proposal")
		return
	}
	s.view.prepareResponses[p.ValidatorIndex] = p
	s.checkPrepareQuorumLocked()
}

// checkPrepareQuorumLocked advances from proposal to commit once M
// validators (including the primary itself) have accepted the same
// PrepareRequest and every named transaction is in hand.
func (s *Service) checkPrepareQuorumLocked() {
	v := s.view
	if v == nil || v.phase == PhaseCommitSent || v.phase == PhaseViewChanging {
		return
	}
	if !v.haveRequest || len(v.prepareResponses) < s.m || !v.haveAllTransactions() {
		return
	}
	if v.assembledBlock == nil {
		v.assembledBlock = s.buildCandidateBlockLocked(v.prepareRequest.PrepareRequest, v.primaryIndex, v.orderedTransactions())
	}
	s.sendCommitLocked()
}

func (s *Service) sendCommitLocked() {
	if s.index < 0 {
		return
	}
	if prior, ok := s.myCommits[s.view.blockIndex]; ok {
		// Safety invariant: never sign a second, different block at this
		// height. A prior commit from an earlier view at this height is
		// simply rebroadcast instead of producing a new one.
		s.cfg.Broadcast.BroadcastConsensus(Marshal(prior))
		s.view.commits[byte(s.index)] = prior
		s.view.phase = PhaseCommitSent
		s.checkCommitQuorumLocked()
		return
	}

	msg := s.view.assembledBlock.Header.Hash().BytesLE()
	sig, err := hash.ECDSASign(s.cfg.Curve, s.cfg.PrivateKey, msg)
	if err != nil {
		s.log.WithError(err).Error("consensus: signing commit")
		return
	}
	payload := s.newPayload(MessageTypeCommit)
	payload.Commit = &CommitData{Signature: sig}
	s.signAndBroadcastLocked(payload)

	s.view.commits[byte(s.index)] = payload
	s.view.phase = PhaseCommitSent
	s.myCommits[s.view.blockIndex] = payload
	s.checkCommitQuorumLocked()
}

func (s *Service) applyCommitLocked(p *Payload) {
	if p.ViewNumber != s.view.viewNumber || p.Commit == nil {
		return
	}
	if s.view.assembledBlock != nil {
		msg := s.view.assembledBlock.Header.Hash().BytesLE()
		if !hash.ECDSAVerify(s.cfg.Curve, s.validators[p.ValidatorIndex], msg, p.Commit.Signature) {
			s.log.WithField("validator", p.ValidatorIndex).Warn("consensus: commit signature does not match candidate block")
			return
		}
	}
	s.view.commits[p.ValidatorIndex] = p
	s.checkCommitQuorumLocked()
}

func (s *Service) checkCommitQuorumLocked() {
	v := s.view
	if v == nil || v.assembledBlock == nil || len(v.commits) < s.m {
		return
	}
	// Commits stored before the candidate block existed were not checked
	// against it; drop every commit that does not sign this block.
	msg := v.assembledBlock.Header.Hash().BytesLE()
	for idx, c := range v.commits {
		if !hash.ECDSAVerify(s.cfg.Curve, s.validators[idx], msg, c.Commit.Signature) {
			delete(v.commits, idx)
		}
	}
	if len(v.commits) < s.m {
		return
	}
	s.finalizeBlockLocked()
}

func (s *Service) finalizeBlockLocked() {
	v := s.view
	block := v.assembledBlock

	var indexes []byte
	for idx := range v.commits {
		indexes = append(indexes, idx)
	}
	for i := 0; i < len(indexes); i++ {
		for j := i + 1; j < len(indexes); j++ {
			if indexes[j] < indexes[i] {
				indexes[i], indexes[j] = indexes[j], indexes[i]
			}
		}
	}
	sigs := make([][]byte, 0, len(indexes))
	for _, idx := range indexes {
		sigs = append(sigs, v.commits[idx].Commit.Signature)
	}

	block.Header.Witness = ledger.Witness{
		InvocationScript:   MultisigInvocationScript(sigs),
		VerificationScript: MultisigVerificationScript(s.validators),
	}

	if _, err := s.cfg.Chain.Persist(block); err != nil {
		s.log.WithError(err).Error("consensus: persisting agreed block")
		// The timer is left running; a timeout will re-attempt via
		// ChangeView/Recovery rather than wedging the service here.
		return
	}

	s.log.WithFields(logrus.Fields{"height": block.Header.Index, "view": v.viewNumber, "signers": len(sigs)}).Info("block committed")
	s.startViewLocked(block.Header.Index+1, 0)
}

func (s *Service) applyChangeViewLocked(p *Payload) {
	if p.ChangeView == nil {
		return
	}
	s.view.changeViews[p.ValidatorIndex] = p
	s.checkViewChangeQuorumLocked()
}

func (s *Service) checkViewChangeQuorumLocked() {
	tally := make(map[byte]int)
	for _, p := range s.view.changeViews {
		tally[p.ChangeView.NewViewNumber]++
	}
	for view, count := range tally {
		if count >= s.m && view > s.view.viewNumber {
			s.startViewLocked(s.view.blockIndex, view)
			return
		}
	}
}

func (s *Service) onTimeoutLocked() {
	v := s.view
	if v == nil {
		return
	}
	if v.phase == PhaseCommitSent {
		// Already committed for this height/view: re-announce the commit
		// and ask for recovery rather than changing view, which would
		// violate the safety invariant.
		s.resetTimerLocked(v.viewNumber)
		if commit, ok := s.myCommits[v.blockIndex]; ok {
			s.cfg.Broadcast.BroadcastConsensus(Marshal(commit))
		}
		s.sendRecoveryRequestLocked()
		return
	}

	newView := v.viewNumber + 1
	v.phase = PhaseViewChanging
	payload := s.newPayload(MessageTypeChangeView)
	payload.ChangeView = &ChangeViewData{NewViewNumber: newView, Reason: ReasonTimeout, Timestamp: uint64(time.Now().UnixMilli())}
	if s.index >= 0 {
		s.signAndBroadcastLocked(payload)
		v.changeViews[byte(s.index)] = payload
	}
	s.resetTimerLocked(newView)
	s.checkViewChangeQuorumLocked()
}

func (s *Service) sendRecoveryRequestLocked() {
	payload := s.newPayload(MessageTypeRecoveryRequest)
	payload.RecoveryRequest = &RecoveryRequestData{Timestamp: uint64(time.Now().UnixMilli())}
	if s.index >= 0 {
		s.signAndBroadcastLocked(payload)
	} else {
		s.cfg.Broadcast.BroadcastConsensus(Marshal(payload))
	}
}

func (s *Service) applyRecoveryRequestLocked(p *Payload) {
	if s.index < 0 || !s.view.haveRequest && len(s.view.commits) == 0 {
		return // nothing useful to answer with yet
	}
	rm := &RecoveryMessageData{
		PrepareRequestHash: s.view.prepareRequestHash,
		CommitSignatures:   make(map[byte][]byte, len(s.view.commits)),
		ChangeViewRequests: make(map[byte]byte, len(s.view.changeViews)),
	}
	if s.view.haveRequest {
		rm.HasPrepareRequest = true
		rm.PrepareRequest = s.view.prepareRequest.PrepareRequest
	}
	for idx := range s.view.prepareResponses {
		rm.PreparationResponses = append(rm.PreparationResponses, idx)
	}
	for idx, c := range s.view.commits {
		rm.CommitSignatures[idx] = c.Commit.Signature
	}
	for idx, cv := range s.view.changeViews {
		rm.ChangeViewRequests[idx] = cv.ChangeView.NewViewNumber
	}

	payload := s.newPayload(MessageTypeRecoveryMessage)
	payload.RecoveryMessage = rm
	s.signAndBroadcastLocked(payload)
}

// applyRecoveryMessageLocked merges a peer's view of (height, view)
// into our own. Only the Commit signatures are independently
// re-verified here (against the candidate block once known); the
// PrepareRequest and the PrepareResponse/ChangeView index sets are
// adopted as unsigned hints, a deliberate simplification of §4.11's
// Recovery that trusts the aggregate rather than replaying each
// original signed sub-message — final safety still rests entirely on
// needing M independently-verified Commit signatures before any block
// is produced.
func (s *Service) applyRecoveryMessageLocked(p *Payload) {
	rm := p.RecoveryMessage
	if rm == nil {
		return
	}

	if !s.view.haveRequest && rm.HasPrepareRequest && rm.PrepareRequest != nil {
		synthetic := &Payload{
			BlockIndex:     s.view.blockIndex,
			ValidatorIndex: s.view.primaryIndex,
			ViewNumber:     s.view.viewNumber,
			Type:           MessageTypePrepareRequest,
			PrepareRequest: rm.PrepareRequest,
		}
		s.view.prepareRequest = synthetic
		s.view.prepareRequestHash = synthetic.Hash()
		s.view.haveRequest = true
		s.view.transactionHashes = rm.PrepareRequest.TransactionHashes
		s.view.timestamp = rm.PrepareRequest.Timestamp
		s.view.nonce = rm.PrepareRequest.Nonce
		s.view.prepareResponses[s.view.primaryIndex] = synthetic
		s.fillMissingTransactionsLocked()
		if s.view.phase == PhaseInitial {
			s.view.phase = PhaseRequestReceived
		}
	}

	for _, idx := range rm.PreparationResponses {
		if _, ok := s.view.prepareResponses[idx]; !ok {
			s.view.prepareResponses[idx] = &Payload{ValidatorIndex: idx, Type: MessageTypePrepareResponse}
		}
	}
	for idx, nv := range rm.ChangeViewRequests {
		if _, ok := s.view.changeViews[idx]; !ok {
			s.view.changeViews[idx] = &Payload{ValidatorIndex: idx, Type: MessageTypeChangeView, ChangeView: &ChangeViewData{NewViewNumber: nv}}
		}
	}

	s.checkPrepareQuorumLocked()

	if s.view.assembledBlock != nil {
		msg := s.view.assembledBlock.Header.Hash().BytesLE()
		for idx, sig := range rm.CommitSignatures {
			if _, ok := s.view.commits[idx]; ok || int(idx) >= s.n {
				continue
			}
			if hash.ECDSAVerify(s.cfg.Curve, s.validators[idx], msg, sig) {
				s.view.commits[idx] = &Payload{ValidatorIndex: idx, Type: MessageTypeCommit, Commit: &CommitData{Signature: sig}}
			}
		}
	}

	s.checkCommitQuorumLocked()
	s.checkViewChangeQuorumLocked()
}

// Status reports a diagnostic snapshot, mirroring blocksync.Syncer's
// own Status method.
func (s *Service) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]any{
		"validators": s.n,
		"quorum":     s.m,
		"index":      s.index,
	}
	if s.view != nil {
		out["height"] = s.view.blockIndex
		out["view"] = s.view.viewNumber
		out["phase"] = int(s.view.phase)
		out["prepareResponses"] = len(s.view.prepareResponses)
		out["commits"] = len(s.view.commits)
	}
	return out
}
