package transport

import (
	"net"
	"testing"
)

func TestEncodeDecodeAddrRoundTripIPv4(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1").To4(), Port: 9000}
	raw := EncodeAddr(addr)

	got, err := DecodeAddr(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IP.Equal(addr.IP) || got.Port != addr.Port {
		t.Fatalf("expected %v, got %v", addr, got)
	}
}

func TestEncodeDecodeAddrRoundTripIPv6(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("::1"), Port: 9000}
	raw := EncodeAddr(addr)

	got, err := DecodeAddr(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IP.Equal(addr.IP) || got.Port != addr.Port {
		t.Fatalf("expected %v, got %v", addr, got)
	}
}

func TestDecodeAddrRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{familyIPv4},
		{familyIPv4, 1, 2, 3},
		{0xff, 1, 2, 3, 4, 5, 6},
	}
	for _, c := range cases {
		if _, err := DecodeAddr(c); err != ErrMalformedEndpoint {
			t.Fatalf("input %v: expected ErrMalformedEndpoint, got %v", c, err)
		}
	}
}
