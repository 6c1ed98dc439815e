package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/photosheet/internal/models"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
	"github.com/lehigh-university-libraries/photosheet/internal/transform"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
)

func (h *Handler) HandleFormats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"formats": h.sessionOpts.Catalog.All(),
		"sliders": transform.Sliders(),
	})
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Format string `json:"format"`
	}
	if r.ContentLength != 0 {
		if !h.decodeJSON(w, r, &request) {
			return
		}
	}

	s := session.New(session.NewID(), h.sessionOpts)
	if request.Format != "" {
		if _, err := s.SelectFormat(request.Format); err != nil {
			s.Close()
			h.writeFailure(w, "Failed to select format", err)
			return
		}
	}
	h.sessionStore.Set(s.ID, s)
	h.writeStatusJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessionList := make([]models.Session, 0)
	for _, id := range h.sessionStore.IDs() {
		if s, ok := h.sessionStore.Get(id); ok {
			sessionList = append(sessionList, s.Snapshot())
		}
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionStore.Delete(r.PathValue("id"))
	if !ok {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	s.Close()
	w.WriteHeader(http.StatusNoContent)
}

// HandleFormat selects the session's format, starting over if one was
// already chosen.
func (h *Handler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Format string `json:"format"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	if _, err := s.SelectFormat(request.Format); err != nil {
		h.writeFailure(w, "Failed to select format", err)
		return
	}
	h.writeJSON(w, s.Snapshot())
}

func (h *Handler) HandleStep(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Action string `json:"action"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}

	var step func() (wizard.Transition, error)
	switch request.Action {
	case "continue":
		step = s.Continue
	case "back":
		step = s.Back
	case "start_over":
		step = s.StartOver
	default:
		h.writeError(w, "Invalid action. Must be 'continue', 'back', or 'start_over'", http.StatusBadRequest)
		return
	}
	t, err := step()
	if err != nil {
		h.writeFailure(w, "Step refused", err)
		return
	}
	h.writeJSON(w, map[string]any{
		"transition": t,
		"session":    s.Snapshot(),
	})
}
