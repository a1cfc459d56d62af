package mux

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

const redirectWriteTimeout = 5 * time.Second

var redirectStatusText = map[int]string{
	301: "Moved Permanently",
	302: "Found",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
}

// NormalizeRedirectStatus clamps the configured redirect status to the
// supported set, defaulting to 308 to preserve method and body semantics.
func NormalizeRedirectStatus(status int) int {
	if _, ok := redirectStatusText[status]; ok {
		return status
	}
	return 308
}

// ResolveForceDomain returns the hostname every redirect should point at,
// or "" to use the client's own Host header. PANEL_HTTP_REDIRECT_FORCE_DOMAIN
// is the explicit knob; PANEL_SSL_DOMAIN is honored for backward
// compatibility only when it names an actual remote host.
func ResolveForceDomain() string {
	if forced, ok := os.LookupEnv("PANEL_HTTP_REDIRECT_FORCE_DOMAIN"); ok {
		return strings.TrimSpace(forced)
	}

	legacy := strings.TrimSpace(config.GetEnv("PANEL_SSL_DOMAIN", ""))
	switch strings.ToLower(legacy) {
	case "", "localhost", "127.0.0.1", "::1":
		return ""
	}
	return legacy
}

// buildRedirectTarget assembles the https:// URL a plaintext client is sent
// to. The port suffix is omitted only for the standard HTTPS port.
func buildRedirectTarget(hostHeader, path, forceDomain string, httpsPort int) string {
	host := hostHeader
	if host != "" {
		host, _, _ = strings.Cut(host, ":")
	}
	if forceDomain != "" {
		host = forceDomain
	}
	if host == "" {
		host = "localhost"
	}

	netloc := host
	if httpsPort != 443 {
		netloc = fmt.Sprintf("%s:%d", host, httpsPort)
	}

	if path == "" {
		path = "/"
	}
	return "https://" + netloc + path
}

// writeRedirect sends a minimal raw redirect response and leaves closing the
// socket to the caller. Write errors are swallowed: the client may already
// be gone.
func writeRedirect(conn net.Conn, target string, status int) {
	status = NormalizeRedirectStatus(status)
	response := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nLocation: %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		status, redirectStatusText[status], target,
	)

	_ = conn.SetWriteDeadline(time.Now().Add(redirectWriteTimeout))
	_, _ = conn.Write([]byte(response))
}
