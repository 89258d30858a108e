package directory

import (
	"net"
	"testing"
	"time"
)

func TestPutIsIdempotentAndRefreshesTimestamp(t *testing.T) {
	d := New()
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(1010, 0)

	d.Put([]byte("h"), []byte("a"), t0)
	d.Put([]byte("h"), []byte("a"), t1)

	addrs := d.Get([]byte("h"))
	if len(addrs) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(addrs))
	}

	r := d.records["h"]
	if !r.entries[0].RefreshedAt.Equal(t1) {
		t.Fatalf("expected refresh timestamp %v, got %v", t1, r.entries[0].RefreshedAt)
	}
}

func TestGetPreservesInsertionOrder(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	d.Put([]byte("h"), []byte("first"), now)
	d.Put([]byte("h"), []byte("second"), now)
	d.Put([]byte("h"), []byte("third"), now)

	addrs := d.Get([]byte("h"))
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if string(addrs[i]) != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, addrs[i])
		}
	}
}

func TestGetMissingHashIsEmptyNotError(t *testing.T) {
	d := New()
	if addrs := d.Get([]byte("nope")); addrs != nil {
		t.Fatalf("expected nil, got %v", addrs)
	}
}

func TestSweepExpiresEntryAndDropsEmptyHash(t *testing.T) {
	d := New()
	t0 := time.Unix(1000, 0)
	d.Put([]byte("h"), []byte("a"), t0)

	next := d.Sweep(t0.Add(TTL + time.Second))
	if addrs := d.Get([]byte("h")); addrs != nil {
		t.Fatalf("expected hash to be evicted, got %v", addrs)
	}
	if next != TTL {
		t.Fatalf("expected next deadline %v for empty directory, got %v", TTL, next)
	}
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	d := New()
	t0 := time.Unix(1000, 0)
	d.Put([]byte("h"), []byte("a"), t0)

	d.Sweep(t0.Add(5 * time.Second))
	if addrs := d.Get([]byte("h")); len(addrs) != 1 {
		t.Fatalf("expected entry to survive, got %v", addrs)
	}
}

func TestIterateAllOrdersByHashThenEntry(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	d.Put([]byte("h1"), []byte("a1"), now)
	d.Put([]byte("h1"), []byte("a2"), now)
	d.Put([]byte("h2"), []byte("b1"), now)

	all := d.IterateAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(all))
	}
	if string(all[0].Hash) != "h1" || string(all[0].Address) != "a1" {
		t.Fatalf("unexpected first pair: %+v", all[0])
	}
	if string(all[1].Hash) != "h1" || string(all[1].Address) != "a2" {
		t.Fatalf("unexpected second pair: %+v", all[1])
	}
	if string(all[2].Hash) != "h2" || string(all[2].Address) != "b1" {
		t.Fatalf("unexpected third pair: %+v", all[2])
	}
}

func udpEndpoint(t *testing.T, addr string, raw string) PeerEndpoint {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatal(err)
	}
	return NewPeerEndpoint(a, []byte(raw))
}

func TestPeerEqualityByFamilyAddressPort(t *testing.T) {
	a := udpEndpoint(t, "10.0.0.1:9000", "a")
	b := udpEndpoint(t, "10.0.0.1:9000", "b")
	c := udpEndpoint(t, "10.0.0.2:9000", "c")
	d := udpEndpoint(t, "10.0.0.1:9001", "d")

	if !a.Equal(b) {
		t.Fatal("expected endpoints with same family/ip/port to be equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different IPs to be distinguished")
	}
	if a.Equal(d) {
		t.Fatal("expected different ports to be distinguished")
	}
}

func TestPeerSetAddIsIdempotent(t *testing.T) {
	ps := NewPeerSet()
	ep := udpEndpoint(t, "10.0.0.1:9000", "x")
	ps.Add(ep)
	ps.Add(ep)
	if len(ps.All()) != 1 {
		t.Fatalf("expected one peer, got %d", len(ps.All()))
	}
}

func TestSweepPeersRemovesUnresponsiveAndProbesSurvivors(t *testing.T) {
	ps := NewPeerSet()
	alive := udpEndpoint(t, "10.0.0.1:9000", "x")
	dead := udpEndpoint(t, "10.0.0.2:9000", "y")
	ps.Add(alive)
	ps.Add(dead)

	// First sweep: both peers are freshly added (expected-alive), so both
	// are probed and flipped to awaiting-response.
	probed, removed := ps.SweepPeers()
	if len(probed) != 2 {
		t.Fatalf("expected 2 peers probed, got %d", len(probed))
	}
	if len(removed) != 0 {
		t.Fatalf("expected no removals on first sweep, got %v", removed)
	}

	ps.MarkAlive(alive)

	// Second sweep: dead never answered, so it's dropped; alive answered
	// and is probed again.
	probed, removed = ps.SweepPeers()
	if len(probed) != 1 || !probed[0].Equal(alive) {
		t.Fatalf("expected only %v to survive, got %v", alive, probed)
	}
	if len(removed) != 1 || !removed[0].Equal(dead) {
		t.Fatalf("expected %v reported removed, got %v", dead, removed)
	}
	if ps.Contains(dead) {
		t.Fatal("expected unresponsive peer to be removed")
	}
}

func TestTwoSuccessiveSweepsWithNoMarkAliveRemoveEveryPeer(t *testing.T) {
	ps := NewPeerSet()
	ps.Add(udpEndpoint(t, "10.0.0.1:9000", "x"))
	ps.Add(udpEndpoint(t, "10.0.0.2:9000", "y"))

	ps.SweepPeers()
	ps.SweepPeers()

	if len(ps.All()) != 0 {
		t.Fatalf("expected every peer removed, got %v", ps.All())
	}
}

func TestRawBytesPreservedForReadvertisement(t *testing.T) {
	ep := udpEndpoint(t, "10.0.0.1:9000", "raw-bytes")
	if string(ep.Raw()) != "raw-bytes" {
		t.Fatalf("expected raw bytes preserved, got %q", ep.Raw())
	}
}
