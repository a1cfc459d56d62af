package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamInterval   = 3 * time.Second
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamBufferSize = 4096
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  streamBufferSize,
	WriteBufferSize: streamBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStatusStream upgrades to WebSocket and pushes the connection status
// every few seconds until the client goes away. Auth happens before the
// upgrade so a bad token gets a proper HTTP status instead of a dropped
// socket.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Auth.Authorize(bearerToken(r)); err != nil {
		writeAuthError(w, err)
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Status stream upgrade error: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(streamBufferSize)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Reader goroutine: its only job is noticing the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	push := func() bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(s.Warp.Status(r.Context())); err != nil {
			return false
		}
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}
