// Package transport provides the server and client's one shared OS
// resource: a UDP datagram socket that can send to an explicit address
// and receive one datagram with an optional timeout, exposing the
// sender's address.
//
// This is adapted from the plain net.UDPConn style of pkg/beacon, pared
// down from a multicast broadcaster to a point-to-point unicast socket:
// hashdir peers are named explicitly at join time, there is no
// group-discovery beacon to maintain.
package transport

import (
	"errors"
	"net"
	"time"
)

// MaxDatagramSize is large enough to hold any message the wire format
// can produce (see wire.MaxMessageSize).
const MaxDatagramSize = 65535

// ErrTimeout is returned by Receive when no datagram arrives within the
// requested deadline.
var ErrTimeout = errors.New("transport: receive timed out")

// Socket wraps one UDP datagram socket.
type Socket struct {
	conn *net.UDPConn
}

// Listen binds a socket to addr. Pass an address with port 0 to let the
// OS pick an ephemeral port, as a client does.
func Listen(addr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo writes data to addr in a single datagram.
func (s *Socket) SendTo(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

// Receive reads one datagram, returning its payload and the sender's
// address. A zero timeout blocks indefinitely; a positive timeout that
// elapses before a datagram arrives yields ErrTimeout. Go's net package
// retries an interrupted system call internally, so there is no
// analogue of the source's EINTR/EAGAIN disambiguation to perform here.
func (s *Socket) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, err
		}
	} else {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, nil, err
		}
	}

	buf := make([]byte, MaxDatagramSize)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
