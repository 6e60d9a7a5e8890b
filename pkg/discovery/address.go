package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference orders addresses for unicast CoAP: IPv4 first, since
// the UDP transport binds udp4 by default, then global IPv6, unique local,
// link-local, loopback and multicast last. The input is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the rank of ip, lower is better.
func ipPriority(ip net.IP) int {
	switch {
	case ip.To16() == nil:
		return 99
	case ip.IsMulticast():
		return 90
	case ip.IsLoopback():
		return 80
	case ip.To4() != nil:
		return 0
	case isUniqueLocal(ip):
		return 2
	case ip.IsLinkLocalUnicast():
		return 3
	case ip.IsGlobalUnicast():
		return 1
	}
	return 10
}

// isUniqueLocal reports fc00::/7.
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	return ip != nil && ip[0]&0xfe == 0xfc
}

// FilterIPv4 returns only IPv4 addresses.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
