package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/sumeragi/crypto"
	"github.com/tolelom/sumeragi/peer"
	"github.com/tolelom/sumeragi/sumeragi"
)

// MessageHandler is called for each received message of a non-Sumeragi type
// (currently only block-sync messages; Sumeragi messages are routed
// straight to the wired Engine).
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers, manages outgoing connections, and
// implements sumeragi.Transport on top of length-delimited, signed JSON
// frames (§6 "Inbound from transport").
type Node struct {
	self       peer.ID
	privKey    crypto.PrivateKey
	listenAddr string
	tlsConfig  *tls.Config // nil -> plain TCP
	maxPeers   int
	engine     *sumeragi.Engine
	log        *logrus.Entry

	mu       sync.RWMutex
	peers    map[string]*Peer // outbound: peer.ID.Key() (pubkey hex); inbound (acceptLoop): remote address
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr, identified by self.
// Call SetEngine before Start so inbound Sumeragi frames have somewhere to
// go.
func NewNode(self peer.ID, privKey crypto.PrivateKey, listenAddr string, tlsCfg *tls.Config, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Node{
		self:       self,
		privKey:    privKey,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		log:        log,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
}

// SetEngine wires the Sumeragi engine that receives decoded, verified
// MsgSumeragi frames.
func (n *Node) SetEngine(e *sumeragi.Engine) {
	n.engine = e
}

// Handle registers a handler for non-Sumeragi msg types (block-sync).
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials target and registers the connection under its peer.ID,
// returning the connection for callers that need it immediately (e.g. to
// kick off an initial block-sync request).
func (n *Node) AddPeer(target peer.ID) (*Peer, error) {
	p, err := Connect(target.Key(), target.Address, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.peers[target.Key()] = p
	n.mu.Unlock()
	go n.readLoop(p)
	return p, nil
}

// peerConn returns the connection for target, if any.
func (n *Node) peerConn(target peer.ID) (*Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[target.Key()]
	return p, ok
}

// ---- sumeragi.Transport ----

// SendTo delivers msg to a single peer, signed with this node's key.
func (n *Node) SendTo(target peer.ID, msg sumeragi.Message) error {
	conn, ok := n.peerConn(target)
	if !ok {
		return fmt.Errorf("network: no connection to %s", target)
	}
	frame, err := n.sign(msg)
	if err != nil {
		return err
	}
	return conn.Send(frame)
}

// Broadcast delivers msg to every target, signed once and reused across
// connections.
func (n *Node) Broadcast(targets []peer.ID, msg sumeragi.Message) error {
	frame, err := n.sign(msg)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range targets {
		conn, ok := n.peerConn(t)
		if !ok {
			n.log.WithField("peer", t).Warn("broadcast: no connection, skipping")
			continue
		}
		if err := conn.Send(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Node) sign(msg sumeragi.Message) (Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal sumeragi message: %w", err)
	}
	return Message{
		Type:    MsgSumeragi,
		From:    n.self.PublicKey.Hex(),
		Sig:     crypto.Sign(n.privKey, payload),
		Payload: payload,
	}, nil
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.WithError(err).Error("accept error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			n.log.WithField("remote", conn.RemoteAddr()).Warn("max peers reached, rejecting")
			conn.Close()
			continue
		}
		p := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[p.ID] = p
		n.mu.Unlock()
		go n.readLoop(p)
	}
}

func (n *Node) readLoop(p *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithField("peer", p.ID).WithField("conn_id", p.ConnID).WithField("panic", r).Error("read loop panicked")
		}
		p.Close()
		n.mu.Lock()
		delete(n.peers, p.ID)
		n.mu.Unlock()
		n.log.WithField("peer", p.ID).WithField("conn_id", p.ConnID).Debug("peer connection closed")
	}()
	n.log.WithField("peer", p.ID).WithField("conn_id", p.ConnID).Debug("peer connection opened")
	for {
		msg, err := p.Receive()
		if err != nil {
			return
		}
		n.dispatch(p, msg)
	}
}

func (n *Node) dispatch(p *Peer, msg Message) {
	if msg.Type == MsgSumeragi {
		n.handleSumeragi(msg)
		return
	}
	n.mu.RLock()
	h, ok := n.handlers[msg.Type]
	n.mu.RUnlock()
	if ok {
		h(p, msg)
	}
}

func (n *Node) handleSumeragi(msg Message) {
	pub, err := crypto.PubKeyFromHex(msg.From)
	if err != nil {
		n.log.WithError(err).Warn("sumeragi frame with unparsable sender pubkey")
		return
	}
	if err := crypto.Verify(pub, msg.Payload, msg.Sig); err != nil {
		n.log.WithField("from", msg.From).WithError(err).Warn("sumeragi frame with invalid signature, dropping")
		return
	}
	var decoded sumeragi.Message
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		n.log.WithError(err).Warn("malformed sumeragi payload")
		return
	}
	if n.engine == nil {
		return
	}
	if err := n.engine.HandleMessage(decoded); err != nil {
		n.log.WithError(err).WithField("kind", decoded.Kind).Debug("sumeragi message rejected")
	}
}
