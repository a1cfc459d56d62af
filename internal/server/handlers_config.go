package server

import (
	"net/http"

	"github.com/CrisRain/Lumina/internal/config"
)

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func (s *Server) handleGetPorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"socks5_port": s.Config.Socks5Port(),
		"panel_port":  s.Config.PanelPort(),
	})
}

// handleSetPorts persists new port assignments. A SOCKS5 port change takes
// effect on the next connect; a panel port change only after restart.
func (s *Server) handleSetPorts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Socks5Port *int `json:"socks5_port"`
		PanelPort  *int `json:"panel_port"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	restartRequired := false

	if req.Socks5Port != nil {
		if !validPort(*req.Socks5Port) {
			writeError(w, http.StatusBadRequest, "socks5_port must be between 1 and 65535")
			return
		}
		if err := s.Config.Set(config.KeySocks5Port, *req.Socks5Port); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.Warp.UpdateSocks5Port(*req.Socks5Port)
	}

	if req.PanelPort != nil {
		if !validPort(*req.PanelPort) {
			writeError(w, http.StatusBadRequest, "panel_port must be between 1 and 65535")
			return
		}
		if *req.PanelPort != s.Config.PanelPort() {
			if err := s.Config.Set(config.KeyPanelPort, *req.PanelPort); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			restartRequired = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"socks5_port":      s.Config.Socks5Port(),
		"panel_port":       s.Config.PanelPort(),
		"restart_required": restartRequired,
	})
}
