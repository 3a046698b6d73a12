// Package lanip resolves the device's own LAN IPv4 address. Discovery and
// pairing both need it: the scanner derives the /24 to probe from it, and
// the verify route reports it to the paired peer.
package lanip

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SelfIPv4 returns the first private, non-loopback IPv4 address on an
// interface that is up. On a phone or laptop this is the Wi-Fi address.
func SelfIPv4() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("lanip: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || !ip4.IsPrivate() {
				continue
			}
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("lanip: no private IPv4 address on any interface")
}

// Split breaks a dotted IPv4 address into its /24 prefix (with trailing
// dot) and its last octet, so "192.168.1.37" yields "192.168.1." and 37.
func Split(addr string) (prefix string, lastOctet int, err error) {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return "", 0, fmt.Errorf("lanip: not a dotted IPv4 address: %q", addr)
	}
	for _, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 || n > 255 || p != strconv.Itoa(n) {
			return "", 0, fmt.Errorf("lanip: not a dotted IPv4 address: %q", addr)
		}
	}
	last, _ := strconv.Atoi(parts[3])
	return parts[0] + "." + parts[1] + "." + parts[2] + ".", last, nil
}
