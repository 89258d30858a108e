package transport

import (
	"encoding/binary"
	"errors"
	"net"
)

// ErrMalformedEndpoint is returned by DecodeAddr when raw does not carry
// a recognisable encoded address.
var ErrMalformedEndpoint = errors.New("transport: malformed peer endpoint")

const (
	familyIPv4 = 4
	familyIPv6 = 6
)

// EncodeAddr packs addr into hashdir's own raw peer-endpoint format: a
// one-byte address family tag, the address bytes, and a little-endian
// port. This stands in for the platform sockaddr bytes the source ships
// in an 's' block — since every hashdir peer is this same Go
// implementation, there is no platform-sockaddr layout to match, only a
// format every peer can encode and decode alike.
func EncodeAddr(addr *net.UDPAddr) []byte {
	if ip4 := addr.IP.To4(); ip4 != nil {
		buf := make([]byte, 1+net.IPv4len+2)
		buf[0] = familyIPv4
		copy(buf[1:], ip4)
		binary.LittleEndian.PutUint16(buf[1+net.IPv4len:], uint16(addr.Port))
		return buf
	}
	ip16 := addr.IP.To16()
	buf := make([]byte, 1+net.IPv6len+2)
	buf[0] = familyIPv6
	copy(buf[1:], ip16)
	binary.LittleEndian.PutUint16(buf[1+net.IPv6len:], uint16(addr.Port))
	return buf
}

// DecodeAddr is the inverse of EncodeAddr. It never panics on malformed
// input, returning ErrMalformedEndpoint instead — raw bytes arrive from
// the network and may have been mangled, truncated, or forged.
func DecodeAddr(raw []byte) (*net.UDPAddr, error) {
	if len(raw) < 1 {
		return nil, ErrMalformedEndpoint
	}
	switch raw[0] {
	case familyIPv4:
		if len(raw) != 1+net.IPv4len+2 {
			return nil, ErrMalformedEndpoint
		}
		ip := make(net.IP, net.IPv4len)
		copy(ip, raw[1:1+net.IPv4len])
		port := binary.LittleEndian.Uint16(raw[1+net.IPv4len:])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case familyIPv6:
		if len(raw) != 1+net.IPv6len+2 {
			return nil, ErrMalformedEndpoint
		}
		ip := make(net.IP, net.IPv6len)
		copy(ip, raw[1:1+net.IPv6len])
		port := binary.LittleEndian.Uint16(raw[1+net.IPv6len:])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	default:
		return nil, ErrMalformedEndpoint
	}
}
