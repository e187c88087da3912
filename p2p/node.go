package p2p

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler is supplied by the node's owner (blocksync, mempool, RPC
// projection) to react to an inbound message; p2p itself only frames
// bytes and runs the handshake/liveness state machine, exactly as the
// engine in smartcontract knows nothing about block ordering.
type Handler interface {
	// HandleMessage processes one decoded message from peer. Returning
	// an error disconnects the peer with a Reject if possible.
	HandleMessage(peer *Peer, command string, payload []byte) error
	// CurrentHeight is read for the handshake's StartHeight field.
	CurrentHeight() uint32
}

// Config bundles the per-node network identity the handshake advertises.
type Config struct {
	Magic              uint32
	UserAgent          string
	ListenAddress      string
	SeedNodes          []string
	MaxConnections     int
	DisableCompression bool
}

// Node owns every live Peer and the listener accepting new ones,
// generalizing the teacher's libp2p-backed `Node` (core/network.go)
// down to a raw net.Listener/net.Dial pair per §4.9's fixed envelope.
type Node struct {
	cfg     Config
	codec   *Codec
	handler Handler
	nonce   uint32

	mu    sync.RWMutex
	peers map[string]*Peer

	listener net.Listener
	stop     chan struct{}
}

// NewNode constructs a Node; call ListenAndServe to start accepting and
// DialSeeds to bootstrap outbound connections.
func NewNode(cfg Config, handler Handler) *Node {
	return &Node{
		cfg:     cfg,
		codec:   &Codec{Magic: cfg.Magic, DisableCompression: cfg.DisableCompression},
		handler: handler,
		nonce:   rand.Uint32(),
		peers:   make(map[string]*Peer),
		stop:    make(chan struct{}),
	}
}

// ListenAndServe binds cfg.ListenAddress and accepts inbound peers
// until Close is called.
func (n *Node) ListenAndServe() error {
	l, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("p2p: listen: %w", err)
	}
	n.listener = l
	go n.acceptLoop()
	return nil
}

// ListenAddress returns the address actually bound by ListenAndServe,
// useful when Config.ListenAddress used an ephemeral ":0" port.
func (n *Node) ListenAddress() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stop:
				return
			default:
				logrus.WithError(err).Warn("p2p: accept failed")
				continue
			}
		}
		if n.peerCount() >= n.cfg.MaxConnections {
			conn.Close()
			continue
		}
		go n.handleInbound(conn)
	}
}

// DialSeeds connects outbound to every configured seed node, per §4.9's
// "PeerDiscovery" bootstrap.
func (n *Node) DialSeeds() {
	for _, addr := range n.cfg.SeedNodes {
		go n.dial(addr)
	}
}

func (n *Node) dial(addr string) {
	if n.peerCount() >= n.cfg.MaxConnections {
		return
	}
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		logrus.WithFields(logrus.Fields{"addr": addr, "error": err}).Warn("p2p: dial failed")
		return
	}
	n.runPeer(NewPeer(conn, n.codec))
}

func (n *Node) handleInbound(conn net.Conn) {
	n.runPeer(NewPeer(conn, n.codec))
}

func (n *Node) peerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

func (n *Node) addPeer(p *Peer) {
	n.mu.Lock()
	n.peers[p.Address] = p
	n.mu.Unlock()
}

func (n *Node) removePeer(p *Peer) {
	n.mu.Lock()
	delete(n.peers, p.Address)
	n.mu.Unlock()
}

// runPeer drives one peer's entire lifecycle: handshake, then a
// read loop dispatching into n.handler until disconnect.
func (n *Node) runPeer(p *Peer) {
	p.Start()
	n.addPeer(p)
	defer n.removePeer(p)
	defer p.Disconnect(nil)

	if err := n.handshake(p); err != nil {
		logrus.WithFields(logrus.Fields{"peer": p.Address, "error": err}).Warn("p2p: handshake failed")
		return
	}
	p.setState(StateReady)
	logrus.WithField("peer", p.Address).Info("peer ready")

	for {
		command, payload, err := p.ReadMessage()
		if err != nil {
			return
		}
		p.touchLastSeen()
		if command == CmdPing {
			n.handlePing(p, payload)
			continue
		}
		if err := n.handler.HandleMessage(p, command, payload); err != nil {
			n.sendReject(p, command, err)
			return
		}
	}
}

// handshake runs §4.9's "Handshake": version exchange, each side must
// verack before any other command is processed.
func (n *Node) handshake(p *Peer) error {
	p.setState(StateHandshaking)

	localVersion := &VersionPayload{
		Magic:       n.cfg.Magic,
		Version:     0,
		Timestamp:   uint64(time.Now().Unix()),
		Nonce:       n.nonce,
		UserAgent:   n.cfg.UserAgent,
		StartHeight: n.handler.CurrentHeight(),
		Relay:       true,
	}
	payload, err := marshalVersion(localVersion)
	if err != nil {
		return err
	}
	if err := p.codec.WriteMessage(p.conn, CmdVersion, payload); err != nil {
		return err
	}

	command, body, err := p.ReadMessage()
	if err != nil {
		return err
	}
	if command != CmdVersion {
		return fmt.Errorf("p2p: expected version, got %s", command)
	}
	remote, err := unmarshalVersion(body)
	if err != nil {
		return err
	}
	if remote.Magic != n.cfg.Magic {
		return fmt.Errorf("p2p: network magic mismatch")
	}
	if remote.Nonce == n.nonce {
		return fmt.Errorf("p2p: self-dial detected")
	}
	p.setHeight(remote.StartHeight)

	if err := p.codec.WriteMessage(p.conn, CmdVerAck, nil); err != nil {
		return err
	}
	command, _, err = p.ReadMessage()
	if err != nil {
		return err
	}
	if command != CmdVerAck {
		return fmt.Errorf("p2p: expected verack, got %s", command)
	}
	return nil
}

func (n *Node) handlePing(p *Peer, payload []byte) {
	p.Send(CmdPong, payload)
}

func (n *Node) sendReject(p *Peer, command string, cause error) {
	rej := &RejectPayload{Command: command, Code: 1, Reason: cause.Error()}
	body := mustMarshal(rej)
	p.Send(CmdReject, body)
}

// Broadcast announces inventory to every ready peer that has not
// already seen it, the core of §4.9's dissemination model.
func (n *Node) Broadcast(item Inventory) {
	inv := &InvPayload{Items: []Inventory{item}}
	body := mustMarshal(inv)

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		if p.State() != StateReady || p.KnowsInventory(item.Hash) {
			continue
		}
		p.MarkKnown(item.Hash)
		p.Send(CmdInv, body)
	}
}

// BroadcastConsensus floods a consensus payload to every ready peer
// directly, unlike Broadcast it never consults KnowsInventory: a
// validator's PrepareRequest/Commit/ChangeView is both small and
// latency-sensitive enough that the normal Inv/GetData round trip
// would cost more than just resending it, and Payload.Hash already
// gives every recipient its own duplicate-suppression.
func (n *Node) BroadcastConsensus(payload []byte) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		if p.State() != StateReady {
			continue
		}
		p.Send(CmdConsensus, payload)
	}
}

// Peers returns a snapshot of currently connected peers.
func (n *Node) Peers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Close stops accepting new connections and disconnects every peer.
func (n *Node) Close() error {
	close(n.stop)
	if n.listener != nil {
		n.listener.Close()
	}
	for _, p := range n.Peers() {
		p.Disconnect(fmt.Errorf("p2p: node closing"))
	}
	return nil
}
