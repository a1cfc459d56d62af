package server

import (
	"net/http"
	"sync"

	"github.com/CrisRain/Lumina/internal/node"
)

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nodes": s.Nodes.List()})
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		BaseURL string `json:"base_url"`
		Token   string `json:"token"`
		Enabled *bool  `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	created, err := s.Nodes.Add(req.Name, req.BaseURL, req.Token, enabled)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    *string `json:"name"`
		BaseURL *string `json:"base_url"`
		Token   *string `json:"token"`
		Enabled *bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := s.Nodes.Update(r.PathValue("id"), req.Name, req.BaseURL, req.Token, req.Enabled)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if !s.Nodes.Delete(r.PathValue("id")) {
		writeNodeError(w, node.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleNodesOverview fans out a status request to every enabled node in
// parallel and merges the local status into the same shape.
func (s *Server) handleNodesOverview(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Local  bool   `json:"local"`
		OK     bool   `json:"ok"`
		Status any    `json:"status,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	nodes := s.Nodes.List()
	entries := make([]entry, 0, len(nodes)+1)
	entries = append(entries, entry{
		ID:     "local",
		Name:   "This panel",
		Local:  true,
		OK:     true,
		Status: s.Warp.Status(r.Context()),
	})

	results := make([]entry, len(nodes))
	var wg sync.WaitGroup
	for i, pn := range nodes {
		if !pn.Enabled {
			results[i] = entry{ID: pn.ID, Name: pn.Name, OK: false, Error: "disabled"}
			continue
		}
		full, ok := s.Nodes.Get(pn.ID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, n node.Node) {
			defer wg.Done()
			res := s.Nodes.Request(r.Context(), n, http.MethodGet, "/api/status", nil)
			results[i] = entry{
				ID:     n.ID,
				Name:   n.Name,
				OK:     res.OK,
				Status: res.Data,
				Error:  res.Error,
			}
		}(i, full)
	}
	wg.Wait()

	for _, e := range results {
		if e.ID != "" {
			entries = append(entries, e)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": entries})
}

// proxyToNode forwards an action to a remote node. Remote auth and
// conflict statuses pass through; everything else collapses to 502 so the
// caller can tell "the remote refused" from "the remote is unreachable".
func (s *Server) proxyToNode(w http.ResponseWriter, r *http.Request, method, path string) {
	n, ok := s.Nodes.Get(r.PathValue("id"))
	if !ok {
		writeNodeError(w, node.ErrNotFound)
		return
	}

	res := s.Nodes.Request(r.Context(), n, method, path, nil)
	if !res.OK {
		status := http.StatusBadGateway
		switch res.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
			http.StatusConflict, http.StatusTooManyRequests:
			status = res.StatusCode
		}
		writeError(w, status, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res.Data)
}

func (s *Server) handleNodeConnect(w http.ResponseWriter, r *http.Request) {
	s.proxyToNode(w, r, http.MethodPost, "/api/connect")
}

func (s *Server) handleNodeDisconnect(w http.ResponseWriter, r *http.Request) {
	s.proxyToNode(w, r, http.MethodPost, "/api/disconnect")
}

func (s *Server) handleNodeBackendSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend string `json:"backend"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	n, ok := s.Nodes.Get(r.PathValue("id"))
	if !ok {
		writeNodeError(w, node.ErrNotFound)
		return
	}

	res := s.Nodes.Request(r.Context(), n, http.MethodPost, "/api/backend/switch", req)
	if !res.OK {
		status := http.StatusBadGateway
		switch res.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
			http.StatusConflict, http.StatusTooManyRequests:
			status = res.StatusCode
		}
		writeError(w, status, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res.Data)
}
