package mux

import (
	"bytes"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	// maxPreludeBytes caps how much of a plaintext request is accumulated
	// before giving up on finding the header terminator.
	maxPreludeBytes = 8192

	// preludeReadTimeout bounds how long a trickling client can hold the
	// prelude reader.
	preludeReadTimeout = 5 * time.Second
)

var headerTerminator = []byte("\r\n\r\n")

// readPrelude reads from conn until the HTTP header terminator is seen or
// the size cap is hit, starting from the already-peeked initial bytes.
// Returns whatever was accumulated; a truncated prelude is still parsed
// best effort.
func readPrelude(conn net.Conn, initial []byte) []byte {
	data := make([]byte, 0, 4096)
	data = append(data, initial...)

	deadline := time.Now().Add(preludeReadTimeout)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 4096)
	for !bytes.Contains(data, headerTerminator) && len(data) < maxPreludeBytes {
		limit := maxPreludeBytes - len(data)
		if limit > len(buf) {
			limit = len(buf)
		}
		n, err := conn.Read(buf[:limit])
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return data
}

// parseHostAndPath extracts the request host and path from a raw HTTP
// prelude. An absolute request target wins over the Host header; the first
// Host header wins otherwise. Path always comes back with a leading slash.
func parseHostAndPath(raw []byte) (host, path string) {
	path = "/"

	lines := strings.Split(string(raw), "\r\n")
	if len(lines) > 0 {
		parts := strings.Fields(lines[0])
		if len(parts) >= 2 {
			target := parts[1]
			if target == "" {
				target = "/"
			}
			if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
				host = u.Host
				path = u.Path
				if path == "" {
					path = "/"
				}
				if u.RawQuery != "" {
					path += "?" + u.RawQuery
				}
			} else {
				path = target
			}
		}
	}

	if host == "" {
		for _, line := range lines[1:] {
			if line == "" {
				break
			}
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(key), "host") {
				host = strings.TrimSpace(value)
				break
			}
		}
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host, path
}
