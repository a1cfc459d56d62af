package mux

import (
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/CrisRain/Lumina/internal/metrics"
)

const (
	upstreamDialTimeout = 5 * time.Second
	relayBufferSize     = 64 * 1024
)

// halfCloser lets a copy loop signal EOF to the peer without tearing down
// the other direction. *net.TCPConn implements it.
type halfCloser interface {
	CloseWrite() error
}

// relayTLS connects to the loopback TLS upstream, replays the peeked prefix
// and pumps bytes both ways until either side finishes. When the dial fails
// the client connection is simply closed; there is nothing useful to tell a
// TLS client in plaintext.
func relayTLS(client net.Conn, prefix []byte, upstreamAddr string) {
	upstream, err := net.DialTimeout("tcp", upstreamAddr, upstreamDialTimeout)
	if err != nil {
		metrics.RelayFailures.Inc()
		log.Printf("⚠️  TLS upstream %s unreachable: %v", upstreamAddr, err)
		return
	}
	defer upstream.Close()

	if _, err := upstream.Write(prefix); err != nil {
		metrics.RelayFailures.Inc()
		return
	}

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(upstream, client, &wg)
	go pump(client, upstream, &wg)
	wg.Wait()
}

// pump copies src into dst until EOF or error, then half-closes both
// directions so the opposite loop unblocks instead of leaking an idle
// connection. The bounded buffer plus blocking writes give natural
// backpressure: a slow reader stalls only its own direction.
func pump(dst, src net.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, relayBufferSize)
	_, _ = io.CopyBuffer(dst, src, buf)

	if c, ok := dst.(halfCloser); ok {
		_ = c.CloseWrite()
	} else {
		_ = dst.SetReadDeadline(time.Now())
	}
	if c, ok := src.(halfCloser); ok {
		_ = c.CloseWrite()
	} else {
		_ = src.SetReadDeadline(time.Now())
	}
}
