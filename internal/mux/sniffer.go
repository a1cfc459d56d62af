package mux

import "bytes"

// Protocol is the classification decided from the first bytes of a
// connection.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolTLS
	ProtocolHTTP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTLS:
		return "tls"
	case ProtocolHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// httpMethodPrefixes are the request-line starts that mark a plaintext HTTP
// connection, trailing space included.
var httpMethodPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("PATCH "),
	[]byte("DELETE "),
	[]byte("HEAD "),
	[]byte("OPTIONS "),
	[]byte("TRACE "),
	[]byte("CONNECT "),
}

// looksLikeTLS checks the TLS record header: handshake record type 0x16,
// major version 3, minor/compat version 0x00-0x04 (TLS 1.0 through 1.3).
func looksLikeTLS(prefix []byte) bool {
	return len(prefix) >= 3 && prefix[0] == 0x16 && prefix[1] == 0x03 && prefix[2] <= 0x04
}

func looksLikeHTTP(prefix []byte) bool {
	upper := bytes.ToUpper(prefix)
	for _, method := range httpMethodPrefixes {
		if bytes.HasPrefix(upper, method) {
			return true
		}
	}
	return false
}

// Classify decides the protocol from the peeked prefix bytes. Anything that
// is neither a TLS handshake nor an HTTP method token is unknown and gets
// treated like HTTP for response purposes.
func Classify(prefix []byte) Protocol {
	if looksLikeTLS(prefix) {
		return ProtocolTLS
	}
	if looksLikeHTTP(prefix) {
		return ProtocolHTTP
	}
	return ProtocolUnknown
}
