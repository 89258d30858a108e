package directory

import (
	"bytes"
	"net"
	"strconv"
)

// PeerEndpoint is the transport-level address of another server. Peers
// are compared by (canonical 16-byte address, port) — a single
// byte-wise comparison of net.IP's canonical form, rather than the
// source's two-step family/port check followed by textual IP equality.
// net.IP.To16() folds IPv4 and IPv4-in-6 representations to the same
// bytes, so this one comparison also subsumes the family check.
//
// Raw carries the exact bytes advertised on the wire as an 's' block:
// re-gossiped peer announcements reproduce these bytes verbatim rather
// than re-deriving them from the parsed address, matching the source's
// behavior of shipping raw sockaddr bytes.
type PeerEndpoint struct {
	addr [16]byte
	port int
	raw  []byte
}

// NewPeerEndpoint builds a PeerEndpoint from a resolved UDP address and
// the raw bytes that should be re-advertised for it.
func NewPeerEndpoint(addr *net.UDPAddr, raw []byte) PeerEndpoint {
	ep := PeerEndpoint{port: addr.Port, raw: append([]byte(nil), raw...)}
	copy(ep.addr[:], addr.IP.To16())
	return ep
}

// Equal reports whether two endpoints name the same peer.
func (p PeerEndpoint) Equal(other PeerEndpoint) bool {
	return p.port == other.port && bytes.Equal(p.addr[:], other.addr[:])
}

// UDPAddr returns the net.UDPAddr to send datagrams to this peer.
func (p PeerEndpoint) UDPAddr() *net.UDPAddr {
	ip := make(net.IP, 16)
	copy(ip, p.addr[:])
	return &net.UDPAddr{IP: ip, Port: p.port}
}

// Raw returns the exact bytes to place in an 's' block when
// re-advertising this peer.
func (p PeerEndpoint) Raw() []byte {
	return p.raw
}

// String returns a canonical textual form, useful for logging.
func (p PeerEndpoint) String() string {
	return "udp://" + net.JoinHostPort(p.UDPAddr().IP.String(), strconv.Itoa(p.port))
}

type peerState struct {
	endpoint PeerEndpoint
	alive    bool // true: expected-alive. false: awaiting-response.
}

// PeerSet is the list of other servers this server knows about, each
// with a liveness flag, kept in insertion order.
type PeerSet struct {
	peers []*peerState
}

// NewPeerSet creates an empty peer set.
func NewPeerSet() *PeerSet {
	return &PeerSet{}
}

func (ps *PeerSet) find(ep PeerEndpoint) *peerState {
	for _, p := range ps.peers {
		if p.endpoint.Equal(ep) {
			return p
		}
	}
	return nil
}

// Add appends ep to the set if not already present, marking it
// expected-alive.
func (ps *PeerSet) Add(ep PeerEndpoint) {
	if ps.find(ep) != nil {
		return
	}
	ps.peers = append(ps.peers, &peerState{endpoint: ep, alive: true})
}

// Remove drops ep from the set, if present.
func (ps *PeerSet) Remove(ep PeerEndpoint) {
	for i, p := range ps.peers {
		if p.endpoint.Equal(ep) {
			ps.peers = append(ps.peers[:i], ps.peers[i+1:]...)
			return
		}
	}
}

// MarkAlive flags ep as expected-alive again. A no-op if ep is unknown.
func (ps *PeerSet) MarkAlive(ep PeerEndpoint) {
	if p := ps.find(ep); p != nil {
		p.alive = true
	}
}

// Contains reports whether ep is in the set.
func (ps *PeerSet) Contains(ep PeerEndpoint) bool {
	return ps.find(ep) != nil
}

// All returns every known peer, in insertion order.
func (ps *PeerSet) All() []PeerEndpoint {
	out := make([]PeerEndpoint, len(ps.peers))
	for i, p := range ps.peers {
		out[i] = p.endpoint
	}
	return out
}

// SweepPeers drops every peer still flagged awaiting-response (it failed
// to answer the previous keep-alive probe), flags every survivor
// awaiting-response for the next round, and returns the survivors — the
// peers a fresh keep-alive probe should now be sent to — alongside the
// peers that were just dropped.
func (ps *PeerSet) SweepPeers() (probe []PeerEndpoint, removed []PeerEndpoint) {
	survivors := ps.peers[:0]
	for _, p := range ps.peers {
		if !p.alive {
			removed = append(removed, p.endpoint)
			continue
		}
		p.alive = false
		survivors = append(survivors, p)
	}
	ps.peers = survivors

	probe = make([]PeerEndpoint, len(survivors))
	for i, p := range survivors {
		probe[i] = p.endpoint
	}
	return probe, removed
}
