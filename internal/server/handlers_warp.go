package server

import (
	"net/http"

	"github.com/CrisRain/Lumina/internal/version"
	"github.com/CrisRain/Lumina/internal/warp"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Get(),
		"backend": s.Warp.CurrentBackend(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Warp.Status(r.Context()))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Warp.Connect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Warp.Status(r.Context()))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Warp.Disconnect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Warp.Status(r.Context()))
}

func (s *Server) handleBackendSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend string `json:"backend"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Backend != warp.BackendUsque && req.Backend != warp.BackendOfficial {
		writeError(w, http.StatusBadRequest, "backend must be \"usque\" or \"official\"")
		return
	}

	backend, err := s.Warp.Switch(r.Context(), req.Backend)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"backend": backend.Name(),
		"mode":    backend.Mode(),
	})
}
