package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/n3node/core/hash"
)

// PeerState is the lifecycle state machine of §4.9's "Peer lifecycle".
type PeerState int

const (
	StateConnecting PeerState = iota
	StateHandshaking
	StateReady
	StateDisconnected
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// knownInventoryCacheSize bounds each peer's "already seen" set so a
// long-lived connection's memory stays flat, per the domain stack's
// golang-lru binding for "P2P known-inventory LRU".
const knownInventoryCacheSize = 4096

// Peer is one connected remote node: its framed conn, handshake state,
// and de-duplication cache of inventory it has already announced or
// received, mirroring the teacher's own `Peer` struct (core/network.go)
// generalized from a libp2p peer.ID to a raw net.Conn session.
type Peer struct {
	SessionID uuid.UUID
	Address   string
	conn      net.Conn
	codec     *Codec

	mu             sync.Mutex
	state          PeerState
	height         uint32
	userAgent      string
	lastSeen       time.Time
	known          *lru.Cache[hash.Uint256, struct{}]
	outbound       chan outboundMessage
	disconnectOnce sync.Once
	closed         chan struct{}
}

type outboundMessage struct {
	command string
	payload []byte
}

// NewPeer wraps an established connection, ready to run its handshake.
func NewPeer(conn net.Conn, codec *Codec) *Peer {
	known, _ := lru.New[hash.Uint256, struct{}](knownInventoryCacheSize)
	return &Peer{
		SessionID: NewSessionID(),
		Address:   conn.RemoteAddr().String(),
		conn:      conn,
		codec:     codec,
		state:     StateConnecting,
		known:     known,
		outbound:  make(chan outboundMessage, 256),
		closed:    make(chan struct{}),
	}
}

func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s PeerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Addr returns the peer's remote address, a stable key other packages
// (blocksync) use to track per-peer request/failure bookkeeping without
// depending on *Peer's full field layout.
func (p *Peer) Addr() string { return p.Address }

func (p *Peer) Height() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

func (p *Peer) setHeight(h uint32) {
	p.mu.Lock()
	p.height = h
	p.mu.Unlock()
}

// KnowsInventory reports whether h was already seen from or sent to
// this peer, so the node never re-announces the same inventory twice.
func (p *Peer) KnowsInventory(h hash.Uint256) bool {
	return p.known.Contains(h)
}

// MarkKnown records h as seen, evicting the least-recently-used entry
// once the cache is full.
func (p *Peer) MarkKnown(h hash.Uint256) {
	p.known.Add(h, struct{}{})
}

// Send enqueues a framed message for the peer's writer loop; a full
// outbound queue means the peer is not draining fast enough and is
// disconnected rather than let the node block on a slow reader.
func (p *Peer) Send(command string, payload []byte) error {
	select {
	case p.outbound <- outboundMessage{command: command, payload: payload}:
		return nil
	default:
		p.Disconnect(fmt.Errorf("p2p: outbound queue full"))
		return fmt.Errorf("p2p: outbound queue full for %s", p.Address)
	}
}

// writeLoop drains the outbound queue onto the connection until the
// peer disconnects.
func (p *Peer) writeLoop() {
	for {
		select {
		case msg := <-p.outbound:
			if err := p.codec.WriteMessage(p.conn, msg.command, msg.payload); err != nil {
				p.Disconnect(err)
				return
			}
		case <-p.closed:
			return
		}
	}
}

// Disconnect closes the connection exactly once, logging the reason.
func (p *Peer) Disconnect(reason error) {
	p.disconnectOnce.Do(func() {
		p.setState(StateDisconnected)
		close(p.closed)
		p.conn.Close()
		logrus.WithFields(logrus.Fields{
			"peer":   p.Address,
			"reason": reason,
		}).Info("peer disconnected")
	})
}

func (p *Peer) Done() <-chan struct{} { return p.closed }

// Start launches the peer's background writer; ReadMessage is called
// directly by Node.runPeer so message handling stays on one
// goroutine per peer (no concurrent decode races against p's own
// mutable state).
func (p *Peer) Start() {
	go p.writeLoop()
}

func (p *Peer) ReadMessage() (string, []byte, error) {
	return p.codec.ReadMessage(p.conn)
}

func (p *Peer) touchLastSeen() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Peer) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}
