// Package server implements hashdir's single-threaded dispatch loop: the
// state machine that owns one server's Directory and PeerSet, replies to
// clients, gossips PUTs, dumps state to joining peers, and keeps the
// peer set alive with keep-alive probes.
//
// The loop structure is adapted from node.go's handler()/inboxHandler()
// split: one goroutine blocks on the socket and forwards datagrams over
// a channel, while the dispatch goroutine multiplexes that channel
// against a keep-alive ticker and the quit signal in a single select —
// so Directory and PeerSet, which carry no locking of their own, are
// only ever touched from the one goroutine that owns them.
package server

import (
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/common/log"

	"github.com/zeromq/hashdir/directory"
	"github.com/zeromq/hashdir/transport"
	"github.com/zeromq/hashdir/wire"
)

// KeepAliveInterval is how often a live peer is probed.
const KeepAliveInterval = 5 * time.Second

// Server is one running hashdir node: a bound socket plus the Directory
// and PeerSet it serves.
type Server struct {
	sock  *transport.Socket
	dir   *directory.Directory
	peers *directory.PeerSet

	lastSweep    time.Time
	nextDeadline time.Duration

	quit chan struct{}
}

// Bind starts a fresh, peerless server listening on addr. This is the
// "Solo" startup mode.
func Bind(addr *net.UDPAddr) (*Server, error) {
	sock, err := transport.Listen(addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		sock:         sock,
		dir:          directory.New(),
		peers:        directory.NewPeerSet(),
		lastSweep:    time.Now(),
		nextDeadline: directory.TTL,
		quit:         make(chan struct{}),
	}, nil
}

// LocalAddr returns the address the server is bound to.
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.sock.LocalAddr()
}

// Stop requests that a running Serve loop shut down gracefully.
func (s *Server) Stop() {
	close(s.quit)
}

// Join performs the bootstrap handshake against an existing peer: send
// NEW-SERVER, then apply every TRANSFER message received until FINISH
// arrives. This is the "Join" startup mode. There is no bootstrap
// timeout: a peer that never finishes its dump leaves the joiner
// blocked here indefinitely, matching the source's behavior.
func (s *Server) Join(peer *net.UDPAddr) error {
	hello := wire.NewBuilder(wire.TypeNewServer).Finalize()
	if err := s.sock.SendTo(peer, hello); err != nil {
		return err
	}

	for {
		raw, _, err := s.sock.Receive(0)
		if err != nil {
			return err
		}
		msg, err := wire.Parse(raw)
		if err != nil {
			continue
		}
		switch msg.Type {
		case wire.TypeTransfer:
			s.applyTransfer(msg)
		case wire.TypeFinish:
			s.peers.Add(directory.NewPeerEndpoint(peer, transport.EncodeAddr(peer)))
			return nil
		}
		// Anything else arriving mid-bootstrap is dropped.
	}
}

type inbound struct {
	data []byte
	from *net.UDPAddr
}

// readLoop blocks on the socket and forwards every datagram to out,
// until the socket is closed or quit fires.
func (s *Server) readLoop(out chan<- inbound) {
	for {
		raw, from, err := s.sock.Receive(0)
		if err != nil {
			close(out)
			return
		}
		cp := append([]byte(nil), raw...)
		select {
		case out <- inbound{data: cp, from: from}:
		case <-s.quit:
			return
		}
	}
}

// Serve runs the main dispatch loop until Stop is called, SIGINT is
// received, or a transport failure aborts it. It always attempts a
// clean shutdown (disconnect broadcast + socket close) before
// returning.
func (s *Server) Serve() error {
	msgs := make(chan inbound, 64)
	go s.readLoop(msgs)

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	for {
		select {
		case <-s.quit:
			return s.shutdown()

		case <-sig:
			return s.shutdown()

		case <-ticker.C:
			if err := s.sendKeepAlive(); err != nil {
				log.Warnf("keep-alive round aborted: %v", err)
				s.shutdown()
				return err
			}

		case m, ok := <-msgs:
			if !ok {
				return s.shutdown()
			}
			s.maybeSweep(time.Now())
			if err := s.dispatch(m.data, m.from); err != nil {
				log.Warnf("dispatch aborted: %v", err)
				s.shutdown()
				return err
			}
		}
	}
}

func (s *Server) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.nextDeadline {
		return
	}
	s.nextDeadline = s.dir.Sweep(now)
	s.lastSweep = now
}

func (s *Server) dispatch(raw []byte, from *net.UDPAddr) error {
	msg, err := wire.Parse(raw)
	if err != nil {
		log.Warnf("malformed message from %s: %v", from, err)
		return nil
	}

	switch msg.Type {
	case wire.TypePut:
		return s.handlePut(raw, msg)
	case wire.TypeGet:
		return s.handleGet(msg, from)
	case wire.TypeNewServer:
		return s.handleNewServer(from)
	case wire.TypeTransfer:
		s.applyTransfer(msg)
		return nil
	case wire.TypeFinish:
		// Only meaningful during the join handshake; outside it, nothing
		// to do.
		return nil
	case wire.TypeKeepAlive:
		return s.sock.SendTo(from, wire.NewBuilder(wire.TypeAlive).Finalize())
	case wire.TypeAlive:
		s.peers.MarkAlive(directory.NewPeerEndpoint(from, transport.EncodeAddr(from)))
		return nil
	case wire.TypeDisconnect:
		log.Infof("Deconnexion d'un serveur: %s", from)
		s.peers.Remove(directory.NewPeerEndpoint(from, transport.EncodeAddr(from)))
		return nil
	default:
		log.Warnf("unknown message type %q from %s, dropping", msg.Type, from)
		return nil
	}
}

// handlePut records a (hash, address) pair and, if there are peers to
// tell, forwards it on as a gossip TRANSFER. The forwarded buffer is the
// exact bytes received with only the type byte rewritten in place
// (p -> t); the block layout was already validated once by wire.Parse,
// so there's no reason to rebuild it block by block.
func (s *Server) handlePut(raw []byte, msg *wire.Message) error {
	hash, ok1 := msg.First(wire.TagHash)
	addr, ok2 := msg.First(wire.TagAddress)
	if !ok1 || !ok2 {
		log.Warn("PUT message missing hash or address, dropping")
		return nil
	}

	s.dir.Put(hash, addr, time.Now())
	log.Info("Arrivee Hash")

	if len(s.peers.All()) == 0 {
		return nil
	}

	raw[0] = wire.TypeTransfer
	for _, p := range s.peers.All() {
		if err := s.sock.SendTo(p.UDPAddr(), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleGet(msg *wire.Message, from *net.UDPAddr) error {
	hash, ok := msg.First(wire.TagHash)
	if !ok {
		log.Warn("GET message missing hash, dropping")
		return nil
	}

	b := wire.NewBuilder(wire.TypeReply)
	for _, addr := range s.dir.Get(hash) {
		if err := b.Append(wire.TagAddress, addr); err != nil {
			log.Warnf("reply truncated, too many addresses for one message: %v", err)
			break
		}
	}
	return s.sock.SendTo(from, b.Finalize())
}

// handleNewServer answers a NEW-SERVER request: dump the full directory
// and peer set to the joiner, announce the joiner to every peer already
// known, then add the joiner to the peer set.
func (s *Server) handleNewServer(from *net.UDPAddr) error {
	log.Info("Nouvelle connexion")

	if err := s.sendBootstrapDump(from); err != nil {
		return err
	}
	if err := s.announceNewPeer(from); err != nil {
		return err
	}
	s.peers.Add(directory.NewPeerEndpoint(from, transport.EncodeAddr(from)))
	return nil
}

func (s *Server) sendBootstrapDump(to *net.UDPAddr) error {
	for _, pair := range s.dir.IterateAll() {
		b := wire.NewBuilder(wire.TypeTransfer)
		if err := b.Append(wire.TagHash, pair.Hash); err != nil {
			log.Warnf("skipping oversized dump entry: %v", err)
			continue
		}
		if err := b.Append(wire.TagAddress, pair.Address); err != nil {
			log.Warnf("skipping oversized dump entry: %v", err)
			continue
		}
		if err := s.sock.SendTo(to, b.Finalize()); err != nil {
			return err
		}
	}

	for _, p := range s.peers.All() {
		b := wire.NewBuilder(wire.TypeTransfer)
		if err := b.Append(wire.TagServer, p.Raw()); err != nil {
			log.Warnf("skipping oversized peer dump entry: %v", err)
			continue
		}
		if err := s.sock.SendTo(to, b.Finalize()); err != nil {
			return err
		}
	}

	return s.sock.SendTo(to, wire.NewBuilder(wire.TypeFinish).Finalize())
}

func (s *Server) announceNewPeer(newPeer *net.UDPAddr) error {
	peers := s.peers.All()
	if len(peers) == 0 {
		return nil
	}

	b := wire.NewBuilder(wire.TypeTransfer)
	if err := b.Append(wire.TagServer, transport.EncodeAddr(newPeer)); err != nil {
		return err
	}
	msg := b.Finalize()

	for _, p := range peers {
		if err := s.sock.SendTo(p.UDPAddr(), msg); err != nil {
			return err
		}
	}
	return nil
}

// applyTransfer handles one gossiped TRANSFER message, whether received
// during the join bootstrap or the normal dispatch loop: a message
// carrying an 's' block announces a peer, anything else is a
// (hash, address) pair to record. TRANSFER messages are never
// re-forwarded — each server gossips only what it learns directly from
// a PUT, never what it learns from another server's gossip.
func (s *Server) applyTransfer(msg *wire.Message) {
	if raw, ok := msg.First(wire.TagServer); ok {
		addr, err := transport.DecodeAddr(raw)
		if err != nil {
			log.Warnf("malformed peer endpoint in TRANSFER, dropping: %v", err)
			return
		}
		s.peers.Add(directory.NewPeerEndpoint(addr, raw))
		return
	}

	hash, ok1 := msg.First(wire.TagHash)
	addr, ok2 := msg.First(wire.TagAddress)
	if !ok1 || !ok2 {
		log.Warn("TRANSFER message missing hash or address, dropping")
		return
	}
	s.dir.Put(hash, addr, time.Now())
}

// sendKeepAlive sweeps the peer set and probes every survivor. A send
// failure aborts the round without probing the remaining peers,
// matching the source's check_send_KA.
func (s *Server) sendKeepAlive() error {
	probe, removed := s.peers.SweepPeers()
	for _, p := range removed {
		log.Infof("Serveur déconnecté: pas de réponse au keep-alive (%s)", p)
	}

	msg := wire.NewBuilder(wire.TypeKeepAlive).Finalize()
	for _, p := range probe {
		if err := s.sock.SendTo(p.UDPAddr(), msg); err != nil {
			return err
		}
	}
	return nil
}

// shutdown broadcasts a DISCONNECT to every known peer (aborting at the
// first send failure, like the source's informer_arret_serveur) and
// always releases the socket regardless of whether the broadcast
// succeeded.
func (s *Server) shutdown() error {
	msg := wire.NewBuilder(wire.TypeDisconnect).Finalize()

	var sendErr error
	for _, p := range s.peers.All() {
		if err := s.sock.SendTo(p.UDPAddr(), msg); err != nil {
			sendErr = err
			break
		}
	}

	log.Info("Fermeture du serveur")
	if closeErr := s.sock.Close(); closeErr != nil && sendErr == nil {
		sendErr = closeErr
	}
	return sendErr
}
