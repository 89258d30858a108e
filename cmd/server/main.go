// Command server runs a hashdir node: either standalone ("Solo") or
// joined to an existing cluster member ("Join").
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/prometheus/common/log"

	"github.com/zeromq/hashdir/server"
)

func usage() {
	fmt.Fprintf(os.Stderr,
		"Usages : %s IP PORT\n"+
			"         %s IP PORT PEER_IP PEER_PORT\n",
		os.Args[0], os.Args[0])
	os.Exit(1)
}

func resolveArg(ipArg, portArg string) *net.UDPAddr {
	port, err := strconv.Atoi(portArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur : port invalide %q\n", portArg)
		os.Exit(1)
	}
	ip := net.ParseIP(ipArg)
	if ip == nil {
		fmt.Fprintf(os.Stderr, "Erreur : adresse invalide %q\n", ipArg)
		os.Exit(1)
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

func main() {
	var self, peer *net.UDPAddr

	switch len(os.Args) {
	case 3:
		self = resolveArg(os.Args[1], os.Args[2])
	case 5:
		self = resolveArg(os.Args[1], os.Args[2])
		peer = resolveArg(os.Args[3], os.Args[4])
	default:
		usage()
	}

	s, err := server.Bind(self)
	if err != nil {
		log.Errorf("failed to bind %s: %v", self, err)
		os.Exit(1)
	}

	if peer != nil {
		if err := s.Join(peer); err != nil {
			log.Errorf("failed to join %s: %v", peer, err)
			os.Exit(1)
		}
	}

	if err := s.Serve(); err != nil {
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
