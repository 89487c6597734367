package utils

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and Cloudflare WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether the host looks like it sits behind a VPN
// or CGNAT, where direct peer connections usually fail.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && IsCGNAT(ipnet.IP) {
				return true
			}
		}
	}
	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, t := range tunnelNames {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// IsCGNAT reports whether ip is in the shared address space 100.64.0.0/10.
func IsCGNAT(ip net.IP) bool {
	return cgnat.Contains(ip)
}
