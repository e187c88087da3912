package blocksync

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
	"github.com/n3node/core/p2p"
	"github.com/n3node/core/wire"
)

// State is the header-first pipeline's own state machine, §4.10.
type State int

const (
	StateIdle State = iota
	StateSyncingHeaders
	StateSyncingBlocks
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncingHeaders:
		return "syncing_headers"
	case StateSyncingBlocks:
		return "syncing_blocks"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Config tunes the bounded-request and orphan-cap knobs §4.10 leaves
// to the implementation.
type Config struct {
	// MaxOutstandingBlocks caps in-flight block requests across all
	// peers; the default is 64.
	MaxOutstandingBlocks int
	// RequestTimeout is the per-request deadline after which a hash
	// returns to the download queue and the owning peer is penalized.
	RequestTimeout time.Duration
	// MaxOrphans caps the out-of-order block buffer.
	MaxOrphans int
	// TickInterval is how often the sync loop re-evaluates state.
	TickInterval time.Duration
}

// DefaultConfig matches the Open Question 2 resolution.
func DefaultConfig() Config {
	return Config{
		MaxOutstandingBlocks: 64,
		RequestTimeout:       15 * time.Second,
		MaxOrphans:           256,
		TickInterval:         500 * time.Millisecond,
	}
}

type pendingBlock struct {
	peer   string
	sentAt time.Time
}

// ConsensusHandler receives p2p.CmdConsensus traffic the Syncer itself
// has no opinion on; *consensus.Service implements it. Kept as a
// narrow interface here (rather than importing the consensus package
// directly) so blocksync never depends on consensus, only the other
// way around.
type ConsensusHandler interface {
	HandlePayload(raw []byte) error
}

// Syncer drives header-first synchronization against a Blockchain over
// a Node's peer set, grounded on the teacher's SyncManager
// (core/blockchain_synchronization.go): a mutex-guarded background
// loop, Start/Stop lifecycle, concrete dependencies rather than
// injected interfaces.
type Syncer struct {
	chain *ledger.Blockchain
	node  *p2p.Node
	cfg   Config

	mu              sync.Mutex
	state           State
	headerHeight    uint32
	headersByHeight map[uint32]hash.Uint256
	heightByHash    map[hash.Uint256]uint32
	outstanding     map[hash.Uint256]pendingBlock
	peerFailures    map[string]int
	orphans         *orphanBuffer
	consensus       ConsensusHandler

	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewSyncer wires a Syncer over an already-open Blockchain and Node.
func NewSyncer(chain *ledger.Blockchain, node *p2p.Node, cfg Config) *Syncer {
	s := &Syncer{
		chain:           chain,
		node:            node,
		cfg:             cfg,
		headerHeight:    chain.Height(),
		headersByHeight: make(map[uint32]hash.Uint256),
		heightByHash:    make(map[hash.Uint256]uint32),
		outstanding:     make(map[hash.Uint256]pendingBlock),
		peerFailures:    make(map[string]int),
		orphans:         newOrphanBuffer(cfg.MaxOrphans),
		stop:            make(chan struct{}),
	}
	s.backfillHeaderIndex()
	return s
}

// backfillHeaderIndex walks the chain this node already has backward
// from its tip so GetHeaders requests can be served for history applied
// before this process started (its own seed chain, or a previous run),
// not only for headers received over the wire this session.
func (s *Syncer) backfillHeaderIndex() {
	height := s.chain.Height()
	hh := s.chain.CurrentHash()
	for height > 0 {
		block, ok := s.chain.GetBlock(hh)
		if !ok {
			break
		}
		s.headersByHeight[height] = hh
		s.heightByHash[hh] = height
		hh = block.Header.PrevHash
		height--
	}
}

// SetNode attaches the Node this syncer drives requests through. A
// Node must supply its Handler at construction while a Syncer needs
// the constructed Node to send on — this setter breaks that
// construction cycle; call it before Start.
func (s *Syncer) SetNode(n *p2p.Node) { s.node = n }

// SetConsensus attaches the consensus service p2p.CmdConsensus
// messages are delegated to; nil (the default) means this node drops
// consensus traffic, matching a pure sync/observer deployment.
func (s *Syncer) SetConsensus(c ConsensusHandler) { s.consensus = c }

// CurrentHeight implements p2p.Handler for the version handshake.
func (s *Syncer) CurrentHeight() uint32 { return s.chain.Height() }

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Syncer) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		logrus.WithField("state", state.String()).Info("blocksync: state transition")
	}
}

// Start launches the background synchronization loop.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for it to exit; outstanding requests
// are simply abandoned, never applied partially (Persist is atomic per
// block), per §4.10's cancellation rule.
func (s *Syncer) Stop() {
	s.stopped.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Syncer) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Syncer) tick() {
	target := s.targetHeight()
	localHeaders := s.headerHeightSnapshot()
	localBlocks := s.chain.Height()

	switch {
	case target <= localBlocks && target <= localHeaders:
		s.setState(StateSynced)
	case localHeaders < target:
		s.setState(StateSyncingHeaders)
		s.requestHeaders()
	default:
		s.setState(StateSyncingBlocks)
		s.sweepTimeouts()
		s.requestBlocks()
	}
}

func (s *Syncer) headerHeightSnapshot() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerHeight
}

// targetHeight is the tallest height any ready peer has reported, the
// "target = max(peer heights)" step of §4.10's algorithm.
func (s *Syncer) targetHeight() uint32 {
	var max uint32
	for _, p := range s.node.Peers() {
		if p.State() == p2p.StateReady && p.Height() > max {
			max = p.Height()
		}
	}
	return max
}

// readyPeers returns ready peers ordered best-first: fewest timeout
// failures, then highest reported height, per §4.10's "best peer"
// selection and its scoring-on-timeout rule.
func (s *Syncer) readyPeers() []*p2p.Peer {
	all := s.node.Peers()
	out := make([]*p2p.Peer, 0, len(all))
	for _, p := range all {
		if p.State() == p2p.StateReady {
			out = append(out, p)
		}
	}
	s.mu.Lock()
	failures := s.peerFailures
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		fi, fj := failures[out[i].Addr()], failures[out[j].Addr()]
		if fi != fj {
			return fi < fj
		}
		return out[i].Height() > out[j].Height()
	})
	return out
}

func (s *Syncer) bestPeer() *p2p.Peer {
	peers := s.readyPeers()
	if len(peers) == 0 {
		return nil
	}
	return peers[0]
}

// headerTip is the hash sync should request the next header batch
// after: the tallest header we know of, or the chain tip once headers
// and blocks are at the same height.
func (s *Syncer) headerTip() hash.Uint256 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.headersByHeight[s.headerHeight]; ok {
		return h
	}
	return s.chain.CurrentHash()
}

func (s *Syncer) requestHeaders() {
	peer := s.bestPeer()
	if peer == nil {
		return
	}
	req := &p2p.GetBlocksPayload{HashStart: s.headerTip(), Count: maxHeadersPerMessage}
	w := wire.NewWriter()
	req.EncodeWire(w)
	peer.Send(p2p.CmdGetHeaders, w.Bytes())
}

// requestBlocks fills the outstanding-request window up to
// MaxOutstandingBlocks, spreading requests across ready peers, per
// §4.10 step 3.
func (s *Syncer) requestBlocks() {
	current := s.chain.Height()

	s.mu.Lock()
	need := s.cfg.MaxOutstandingBlocks - len(s.outstanding)
	var want []hash.Uint256
	for h := current + 1; need > 0 && h <= s.headerHeight; h++ {
		hh, ok := s.headersByHeight[h]
		if !ok {
			break
		}
		if _, busy := s.outstanding[hh]; busy {
			continue
		}
		if s.orphans.has(h) {
			continue
		}
		want = append(want, hh)
		need--
	}
	s.mu.Unlock()
	if len(want) == 0 {
		return
	}

	peers := s.readyPeers()
	if len(peers) == 0 {
		return
	}

	s.mu.Lock()
	for i, hh := range want {
		peer := peers[i%len(peers)]
		s.outstanding[hh] = pendingBlock{peer: peer.Addr(), sentAt: time.Now()}
		inv := &p2p.InvPayload{Items: []p2p.Inventory{{Type: p2p.InvTypeBlock, Hash: hh}}}
		w := wire.NewWriter()
		inv.EncodeWire(w)
		peer.Send(p2p.CmdGetData, w.Bytes())
	}
	s.mu.Unlock()
}

// sweepTimeouts returns expired requests to the download queue and
// penalizes the peer that failed to answer, per §4.10 step 3.
func (s *Syncer) sweepTimeouts() {
	deadline := time.Now().Add(-s.cfg.RequestTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()
	for hh, pend := range s.outstanding {
		if pend.sentAt.Before(deadline) {
			delete(s.outstanding, hh)
			s.peerFailures[pend.peer]++
		}
	}
}

// HandleMessage implements p2p.Handler, routing sync-relevant commands.
func (s *Syncer) HandleMessage(peer *p2p.Peer, command string, payload []byte) error {
	switch command {
	case p2p.CmdHeaders:
		return s.handleHeaders(payload)
	case p2p.CmdBlock:
		return s.handleBlock(payload)
	case p2p.CmdInv:
		return s.handleInv(peer, payload)
	case p2p.CmdGetHeaders:
		return s.serveGetHeaders(peer, payload)
	case p2p.CmdGetData:
		return s.serveGetData(peer, payload)
	case p2p.CmdConsensus:
		if s.consensus != nil {
			return s.consensus.HandlePayload(payload)
		}
	}
	return nil
}

func (s *Syncer) handleHeaders(payload []byte) error {
	hp := &HeadersPayload{}
	if err := hp.DecodeWire(wire.NewReader(payload)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hp.Headers {
		if err := s.chain.AddHeader(h); err != nil {
			continue
		}
		hh := h.Hash()
		s.headersByHeight[h.Index] = hh
		s.heightByHash[hh] = h.Index
		if h.Index > s.headerHeight {
			s.headerHeight = h.Index
		}
	}
	return nil
}

func (s *Syncer) handleBlock(payload []byte) error {
	block := new(ledger.Block)
	if err := block.DecodeWire(wire.NewReader(payload)); err != nil {
		return err
	}
	bh := block.Header.Hash()
	s.mu.Lock()
	delete(s.outstanding, bh)
	s.mu.Unlock()

	s.ingest(block)
	return nil
}

// ingest applies block if it continues the local chain, otherwise
// buffers it as an orphan; after each successful apply it scans the
// orphan buffer for the newly-contiguous successor, per §4.10 step 4.
func (s *Syncer) ingest(block *ledger.Block) {
	for {
		if block.Header.Index != s.chain.Height()+1 {
			s.mu.Lock()
			s.orphans.add(block)
			s.mu.Unlock()
			return
		}
		if _, err := s.chain.Persist(block); err != nil {
			logrus.WithFields(logrus.Fields{
				"height": block.Header.Index,
				"error":  err,
			}).Warn("blocksync: block rejected")
			return
		}
		s.mu.Lock()
		next, ok := s.orphans.take(block.Header.Index + 1)
		s.mu.Unlock()
		if !ok {
			return
		}
		block = next
	}
}

func (s *Syncer) handleInv(peer *p2p.Peer, payload []byte) error {
	inv := &p2p.InvPayload{}
	if err := inv.DecodeWire(wire.NewReader(payload)); err != nil {
		return err
	}

	var want []p2p.Inventory
	s.mu.Lock()
	for _, item := range inv.Items {
		if item.Type != p2p.InvTypeBlock {
			continue
		}
		if _, busy := s.outstanding[item.Hash]; busy {
			continue
		}
		if len(s.outstanding) >= s.cfg.MaxOutstandingBlocks {
			break
		}
		s.outstanding[item.Hash] = pendingBlock{peer: peer.Addr(), sentAt: time.Now()}
		want = append(want, item)
	}
	s.mu.Unlock()
	if len(want) == 0 {
		return nil
	}

	req := &p2p.InvPayload{Items: want}
	w := wire.NewWriter()
	req.EncodeWire(w)
	return peer.Send(p2p.CmdGetData, w.Bytes())
}

// headerAt resolves a header by hash whether it is still pending
// application (Blockchain's own header index) or already persisted
// (recovered from the stored block body).
func (s *Syncer) headerAt(hh hash.Uint256) (*ledger.Header, bool) {
	if hdr, ok := s.chain.Header(hh); ok {
		return hdr, true
	}
	if block, ok := s.chain.GetBlock(hh); ok {
		return &block.Header, true
	}
	return nil, false
}

// serveGetHeaders answers another peer's GetHeaders with whatever
// contiguous run of headers this node can supply starting after the
// requested hash — best effort, limited to heights this node has
// itself indexed via headersByHeight.
func (s *Syncer) serveGetHeaders(peer *p2p.Peer, payload []byte) error {
	req := &p2p.GetBlocksPayload{}
	if err := req.DecodeWire(wire.NewReader(payload)); err != nil {
		return err
	}

	s.mu.Lock()
	startHeight, known := s.heightByHash[req.HashStart]
	isZero := req.HashStart == hash.Uint256Zero
	s.mu.Unlock()
	if !known && !isZero {
		return nil
	}

	count := int(req.Count)
	if count <= 0 || count > maxHeadersPerMessage {
		count = maxHeadersPerMessage
	}

	var headers []*ledger.Header
	s.mu.Lock()
	for h := startHeight + 1; len(headers) < count; h++ {
		hh, ok := s.headersByHeight[h]
		if !ok {
			break
		}
		hdr, ok := s.headerAt(hh)
		if !ok {
			break
		}
		headers = append(headers, hdr)
	}
	s.mu.Unlock()
	if len(headers) == 0 {
		return nil
	}
	return peer.Send(p2p.CmdHeaders, marshalHeaders(&HeadersPayload{Headers: headers}))
}

// serveGetData answers another peer's block requests from this node's
// own store.
func (s *Syncer) serveGetData(peer *p2p.Peer, payload []byte) error {
	req := &p2p.InvPayload{}
	if err := req.DecodeWire(wire.NewReader(payload)); err != nil {
		return err
	}
	for _, item := range req.Items {
		if item.Type != p2p.InvTypeBlock {
			continue
		}
		block, ok := s.chain.GetBlock(item.Hash)
		if !ok {
			continue
		}
		w := wire.NewWriter()
		block.EncodeWire(w)
		if err := peer.Send(p2p.CmdBlock, w.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Status reports progress for CLI/metrics use, mirroring the teacher's
// own SyncManager.Status.
func (s *Syncer) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"state":            s.state.String(),
		"header_height":    s.headerHeight,
		"block_height":     s.chain.Height(),
		"outstanding":      len(s.outstanding),
		"orphans_buffered": s.orphans.len(),
	}
}
