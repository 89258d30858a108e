// Command client issues a single GET or PUT against a hashdir server.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/zeromq/hashdir/client"
)

func usage() {
	fmt.Fprintf(os.Stderr,
		"Usages : %s IP PORT GET HASH \n"+
			"         %s IP PORT PUT HASH IP\n",
		os.Args[0], os.Args[0])
	os.Exit(1)
}

func resolveServer(ipArg, portArg string) *net.UDPAddr {
	port, err := strconv.Atoi(portArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur : port invalide %q\n", portArg)
		os.Exit(2)
	}
	ip := net.ParseIP(ipArg)
	if ip == nil {
		fmt.Fprintf(os.Stderr, "Erreur : adresse invalide %q\n", ipArg)
		os.Exit(2)
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

func main() {
	if len(os.Args) != 5 && len(os.Args) != 6 {
		usage()
	}

	server := resolveServer(os.Args[1], os.Args[2])
	command := strings.ToUpper(os.Args[3])

	switch {
	case len(os.Args) == 5 && command == "GET":
		runGet(server, os.Args[4])
	case len(os.Args) == 6 && command == "PUT":
		runPut(server, os.Args[4], os.Args[5])
	default:
		usage()
	}
}

func runGet(server *net.UDPAddr, hash string) {
	addrs, err := client.Get(server, []byte(hash))
	if err != nil {
		if err == client.ErrNoResponse {
			fmt.Fprint(os.Stderr, "Le serveur ne répond pas.\n")
			os.Exit(98)
		}
		fmt.Fprintf(os.Stderr, "Erreur : %v\n", err)
		os.Exit(1)
	}

	if err := client.PrintAddresses(os.Stdout, addrs); err != nil {
		fmt.Fprintf(os.Stderr, "Erreur : %v\n", err)
		os.Exit(3)
	}
}

func runPut(server *net.UDPAddr, hash, address string) {
	if err := client.Put(server, []byte(hash), []byte(address)); err != nil {
		fmt.Fprintf(os.Stderr, "Erreur : %v\n", err)
		os.Exit(1)
	}
}
