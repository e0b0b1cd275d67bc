// Package facts gathers host facts that influence rendering. Currently only
// IPv6 connectivity.
package facts

import (
	"net"
)

// HasIPv6 reports whether the host has IPv6 connectivity: any interface
// carries a global unicast IPv6 address. Mailhosts with IPv6 listen
// directives enabled fall back to IPv4-only rendering when this is false.
func HasIPv6() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP
		if ip.To4() == nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
