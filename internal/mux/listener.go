package mux

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/CrisRain/Lumina/internal/metrics"
)

const (
	// sniffBytes is the peek window used for classification.
	sniffBytes = 32

	// sniffTimeout tolerates slow clients trickling their first bytes.
	sniffTimeout = 5 * time.Second
)

// Config describes one multiplexer listener.
type Config struct {
	// ListenHost and ListenPort are the externally visible socket.
	ListenHost string
	ListenPort int

	// UpstreamPort is the loopback port of the internal TLS terminator that
	// classified-TLS connections are piped to.
	UpstreamPort int

	// RedirectStatus is the HTTP status used for plaintext redirects
	// (301/302/307/308).
	RedirectStatus int

	// ForceDomain overrides the redirect host when the client's Host header
	// cannot be trusted (e.g. behind a NATed deployment).
	ForceDomain string
}

// Listener accepts raw TCP connections on one port and dispatches each onto
// its own goroutine: TLS handshakes are piped to the internal TLS listener,
// everything else gets a synthesized HTTPS redirect.
type Listener struct {
	cfg          Config
	upstreamAddr string
	ln           net.Listener
	closed       atomic.Bool
}

// New validates the configuration. Listening on the upstream port itself
// would relay connections straight back into the multiplexer, so that is
// refused outright.
func New(cfg Config) (*Listener, error) {
	if cfg.ListenPort == cfg.UpstreamPort {
		return nil, fmt.Errorf("multiplexer port %d must differ from the internal TLS port", cfg.ListenPort)
	}
	cfg.RedirectStatus = NormalizeRedirectStatus(cfg.RedirectStatus)

	return &Listener{
		cfg:          cfg,
		upstreamAddr: fmt.Sprintf("127.0.0.1:%d", cfg.UpstreamPort),
	}, nil
}

// ListenAndServe binds the external port and runs the accept loop until
// Close is called.
func (l *Listener) ListenAndServe() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", l.cfg.ListenHost, l.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("multiplexer failed to listen: %w", err)
	}
	l.ln = ln
	log.Printf("🌐 HTTP/TLS multiplexer listening on %s, TLS upstream %s", ln.Addr(), l.upstreamAddr)
	return l.Serve(ln)
}

// Serve runs the accept loop on ln. One stalled peer never blocks accepting:
// every connection is handled on its own goroutine.
func (l *Listener) Serve(ln net.Listener) error {
	l.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go l.handle(conn)
	}
}

// Close stops the accept loop. In-flight relays run to completion.
func (l *Listener) Close() error {
	l.closed.Store(true)
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}

// handle sniffs the leading bytes of conn and branches. The peeked bytes are
// replayed on whichever path is taken, so no data is lost.
func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	prefix := make([]byte, sniffBytes)
	n, err := conn.Read(prefix)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil || n == 0 {
		return
	}
	prefix = prefix[:n]

	proto := Classify(prefix)
	metrics.ConnectionsSniffed.WithLabelValues(proto.String()).Inc()

	if proto == ProtocolTLS {
		relayTLS(conn, prefix, l.upstreamAddr)
		return
	}

	host, path := "", "/"
	if proto == ProtocolHTTP {
		raw := readPrelude(conn, prefix)
		host, path = parseHostAndPath(raw)
	}

	target := buildRedirectTarget(host, path, l.cfg.ForceDomain, l.cfg.ListenPort)
	writeRedirect(conn, target, l.cfg.RedirectStatus)
	metrics.RedirectsServed.Inc()
}
