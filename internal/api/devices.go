package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// handleListDevices returns every device's status in load order.
// Optional filters: ?type= and ?state=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")
	stateFilter := r.URL.Query().Get("state")

	all := s.devices.StatusList()
	out := make([]device.Status, 0, len(all))
	for _, st := range all {
		if typeFilter != "" && st.Type != typeFilter {
			continue
		}
		if stateFilter != "" && st.State.String() != stateFilter {
			continue
		}
		out = append(out, st)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleGetDevice returns one device's status.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.Get(id)
	if errors.Is(err, device.ErrUnknownDevice) {
		writeNotFound(w, "device not found: "+id)
		return
	}
	if err != nil {
		s.logger.Error("failed to get device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	resp := map[string]any{"status": dev.Status()}
	if lister, ok := dev.(interface{ Commands() []string }); ok {
		resp["commands"] = lister.Commands()
	}
	writeJSON(w, http.StatusOK, resp)
}
