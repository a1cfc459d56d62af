package server

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

var (
	trustedProxies []*net.IPNet
	proxyOnce      sync.Once
)

func initTrustedProxies() {
	proxyOnce.Do(func() {
		defaultCIDRs := []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
		if env := os.Getenv("LUMINA_TRUSTED_PROXIES"); env != "" {
			defaultCIDRs = strings.Split(env, ",")
		}
		for _, cidr := range defaultCIDRs {
			cidr = strings.TrimSpace(cidr)
			_, network, err := net.ParseCIDR(cidr)
			if err == nil {
				trustedProxies = append(trustedProxies, network)
			}
		}
	})
}

func isTrustedProxy(ip string) bool {
	initTrustedProxies()
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// GetClientIP resolves the originating client address. Forwarding headers
// are honored only when the direct peer is a trusted proxy, so an attacker
// cannot spoof its way into a fresh throttle bucket.
func GetClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	if isTrustedProxy(directIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			xri = strings.TrimSpace(xri)
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}
