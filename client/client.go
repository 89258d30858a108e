// Package client implements hashdir's one-shot PUT and GET operations:
// a client opens a socket, sends a single request, and — for GET — waits
// a bounded time for a reply before giving up.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/zeromq/hashdir/transport"
	"github.com/zeromq/hashdir/wire"
)

// GetTimeout is how long a GET waits for a reply before giving up,
// matching the source's CLIENT_TIMEOUT_SEC.
const GetTimeout = 2 * time.Second

// ErrNoResponse is returned by Get when the server doesn't answer
// within GetTimeout.
var ErrNoResponse = errors.New("client: server did not respond")

// Put sends a single fire-and-forget PUT(hash, address) to server and
// returns as soon as the datagram is on the wire. There is no
// acknowledgement in the protocol, so success here only means the
// local send succeeded.
func Put(server *net.UDPAddr, hash, address []byte) error {
	sock, err := transport.Listen(localBindAddr(server))
	if err != nil {
		return err
	}
	defer sock.Close()

	b := wire.NewBuilder(wire.TypePut)
	if err := b.Append(wire.TagHash, hash); err != nil {
		return err
	}
	if err := b.Append(wire.TagAddress, address); err != nil {
		return err
	}
	return sock.SendTo(server, b.Finalize())
}

// Get sends a GET(hash) to server and returns the addresses it replies
// with, in the order they arrived. ErrNoResponse is returned if nothing
// comes back within GetTimeout.
func Get(server *net.UDPAddr, hash []byte) ([][]byte, error) {
	sock, err := transport.Listen(localBindAddr(server))
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	b := wire.NewBuilder(wire.TypeGet)
	if err := b.Append(wire.TagHash, hash); err != nil {
		return nil, err
	}
	if err := sock.SendTo(server, b.Finalize()); err != nil {
		return nil, err
	}

	raw, _, err := sock.Receive(GetTimeout)
	if err != nil {
		if err == transport.ErrTimeout {
			return nil, ErrNoResponse
		}
		return nil, err
	}

	msg, err := wire.Parse(raw)
	if err != nil {
		return nil, err
	}
	return msg.Iterate(wire.TagAddress).All(), nil
}

// PrintAddresses writes the header line and space-separated addresses
// exactly as the source's afficher_adresse_dispo does (each address
// followed by one space), terminated by a newline. An empty addrs list is not an error — it still prints the
// header and the trailing newline.
func PrintAddresses(w io.Writer, addrs [][]byte) error {
	if _, err := fmt.Fprint(w, "IP disponibles pour le téléchargement :\n"); err != nil {
		return err
	}
	for _, a := range addrs {
		if _, err := fmt.Fprintf(w, "%s ", a); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// localBindAddr picks an ephemeral local address of the same family as
// remote — the client never cares which local interface it sends from,
// only that the family matches the server it's contacting.
func localBindAddr(remote *net.UDPAddr) *net.UDPAddr {
	if remote.IP.To4() != nil {
		return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	}
	return &net.UDPAddr{IP: net.IPv6zero, Port: 0}
}
