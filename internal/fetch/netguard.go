package fetch

import (
	"net"
	"strings"
)

// Private, link-local, loopback, and cloud-metadata ranges. Any target whose
// literal or resolved address lands in this set is refused outright.
var blockedCIDRs = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

// Explicit metadata endpoints (AWS/ECS/Alibaba) on top of the range policy.
var blockedLiterals = map[string]bool{
	"169.254.169.254": true,
	"169.254.170.2":   true,
	"100.100.100.200": true,
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic("fetch: bad built-in CIDR " + c)
		}
		out = append(out, network)
	}
	return out
}

// isBlockedIP reports whether the address is private, local, or metadata.
// IPv4-mapped IPv6 addresses are unmapped before checking.
func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if blockedLiterals[ip.String()] {
		return true
	}
	for _, network := range blockedCIDRs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname rejects names that can never be safe public targets.
func isBlockedHostname(hostname string) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	return h == "" || h == "localhost" || h == "::1" || strings.HasSuffix(h, ".local")
}
