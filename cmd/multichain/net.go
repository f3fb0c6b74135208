package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const defaultPort = 53550

// guessIpAddress takes a base IP address and a partial address string,
// and fills in the missing octets from the base address.
func guessIpAddress(baseAddress net.IP, partialAddr string) (net.IP, error) {
	ip := make(net.IP, len(baseAddress))
	copy(ip, baseAddress)
	octets := strings.Split(partialAddr, ".")
	if len(octets) == 1 && octets[0] == "" {
		return ip, nil
	}
	if len(octets) > len(ip) {
		return net.IP{}, fmt.Errorf("too many octets in %q", partialAddr)
	}
	for i := 0; i < len(octets); i++ {
		var octet byte
		_, err := fmt.Sscanf(octets[i], "%d", &octet)
		if err != nil {
			return net.IP{}, err
		}
		ip[len(ip)-len(octets)+i] = octet
	}
	return ip, nil
}

// splitHostPort splits an address into host and port, using defaultPort if no port is specified.
func splitHostPort(addr string, defaultPort int) (string, string, error) {
	ipaddr, port, err := net.SplitHostPort(addr)
	if err != nil {
		addr = addr + ":" + strconv.Itoa(defaultPort)
		ipaddr, port, err = net.SplitHostPort(addr)
		if err != nil {
			return "", "", err
		}
	}
	return ipaddr, port, nil
}

// isPartialIp reports whether host is made of dot separated numbers only,
// e.g. "42" or "15.42".
func isPartialIp(host string) bool {
	if host == "" {
		return true
	}
	for _, octet := range strings.Split(host, ".") {
		if _, err := strconv.ParseUint(octet, 10, 8); err != nil {
			return false
		}
	}
	return true
}

// parsePeers builds the address book from the --peers list, ordered by
// rank. Partial IPv4 addresses are completed from base and missing ports
// default to defaultPort.
func parsePeers(peers []string, base net.IP) (map[int]string, error) {
	if base4 := base.To4(); base4 != nil {
		base = base4
	}
	addresses := make(map[int]string, len(peers))
	for rank, peer := range peers {
		host, port, err := splitHostPort(strings.TrimSpace(peer), defaultPort)
		if err != nil {
			return nil, fmt.Errorf("invalid address of rank %d %q: %w", rank, peer, err)
		}
		if isPartialIp(host) && base != nil {
			ip, err := guessIpAddress(base, host)
			if err != nil {
				return nil, fmt.Errorf("could not guess address of rank %d %q: %w", rank, peer, err)
			}
			host = ip.String()
		}
		addresses[rank] = net.JoinHostPort(host, port)
	}
	return addresses, nil
}
