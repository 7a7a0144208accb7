// Package relay implements the signaling relay: a WebSocket server that
// registers peers by name and forwards envelopes between them. It routes
// only; media never touches it.
package relay

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/peercall/peercall/internal/protocol"
	"github.com/peercall/peercall/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server routes signaling envelopes between registered peers. Delivery is
// at-most-once and order-preserving per direction: each peer has a single
// connection with a serialized write path.
type Server struct {
	listener net.Listener

	mu    sync.Mutex
	peers map[string]*peerConn
}

// peerConn is one registered peer. Writes are serialized by a mutex, the
// same way outgoing frames are guarded on the client side.
type peerConn struct {
	name string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peerConn) send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// NewServer creates an empty relay.
func NewServer() *Server {
	return &Server{peers: make(map[string]*peerConn)}
}

// Start begins listening on addr (":0" picks a random port). Returns the
// assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

// Close shuts down the listener, preventing new connections. Existing
// connections drop on their own read errors.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// HandleWS upgrades one connection and serves it until it drops. The first
// envelope must be store_user; everything before registration is rejected.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	peer, err := s.register(conn)
	if err != nil {
		util.LogWarning("registration failed: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer s.unregister(peer)

	util.LogInfo("peer %q registered", peer.name)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			util.Stats.AddDropped()
			util.LogWarning("dropping frame from %q: %v", peer.name, err)
			continue
		}
		s.route(peer, env)
	}
}

// register reads the mandatory store_user envelope and claims the name.
func (s *Server) register(conn *websocket.Conn) (*peerConn, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("connection dropped before registration: %w", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	if env.Type != protocol.TypeRegister || env.Name == "" {
		return nil, fmt.Errorf("expected %s envelope first, got %q", protocol.TypeRegister, env.Type)
	}

	peer := &peerConn{name: env.Name, conn: conn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.peers[env.Name]; taken {
		return nil, fmt.Errorf("name %q already registered", env.Name)
	}
	s.peers[env.Name] = peer
	util.Stats.AddPeer()
	return peer, nil
}

func (s *Server) unregister(p *peerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[p.name] == p {
		delete(s.peers, p.name)
		util.Stats.RemovePeer()
		util.LogInfo("peer %q departed", p.name)
	}
}

func (s *Server) lookup(name string) (*peerConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[name]
	return p, ok
}

// route dispatches one envelope from a registered peer.
func (s *Server) route(from *peerConn, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRegister:
		// Already registered; duplicate announcements are noise.

	case protocol.TypeStartCall:
		// Availability probe: answered by the relay itself, never
		// forwarded. The callee first hears of the call via the offer.
		_, online := s.lookup(env.Target)
		if err := from.send(protocol.CallResponse(env.Name, online)); err != nil {
			util.LogWarning("failed to answer start_call from %q: %v", from.name, err)
		}

	case protocol.TypeCreateOffer:
		env.Type = protocol.TypeOfferReceived
		s.forward(from, env)

	case protocol.TypeCreateAnswer:
		env.Type = protocol.TypeAnswerReceived
		s.forward(from, env)

	case protocol.TypeCandidate, protocol.TypeEndCall:
		s.forward(from, env)

	default:
		util.Stats.AddDropped()
		util.LogDebug("dropping unroutable %q envelope from %q", env.Type, from.name)
	}
}

// forward delivers env to its target, dropping it silently when the target
// is gone. The sender's own timeout handling covers the loss.
func (s *Server) forward(from *peerConn, env protocol.Envelope) {
	target, ok := s.lookup(env.Target)
	if !ok {
		util.Stats.AddDropped()
		util.LogDebug("dropping %q from %q: target %q not registered", env.Type, from.name, env.Target)
		return
	}
	if err := target.send(env); err != nil {
		util.Stats.AddDropped()
		util.LogWarning("failed to forward %q to %q: %v", env.Type, env.Target, err)
		return
	}
	util.Stats.AddRouted()
}
