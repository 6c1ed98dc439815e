package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/photosheet/internal/collection"
	"github.com/lehigh-university-libraries/photosheet/internal/editor"
	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/images"
	"github.com/lehigh-university-libraries/photosheet/internal/layout"
	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
	"github.com/lehigh-university-libraries/photosheet/internal/sheet"
	"github.com/lehigh-university-libraries/photosheet/internal/storage"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
)

type Handler struct {
	sessionStore *storage.SessionStore[*session.Session]
	sessionOpts  session.Options
	fetcher      *images.Fetcher
}

// New returns a Handler whose sessions are built from opts.
func New(opts session.Options) *Handler {
	if opts.Catalog == nil {
		opts.Catalog = formats.Default()
	}
	if opts.Blobs == nil {
		opts.Blobs = storage.NewMemoryBlobs()
	}
	return &Handler{
		sessionStore: storage.New[*session.Session](),
		sessionOpts:  opts,
		fetcher:      images.NewFetcher(),
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeStatusJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeFailure reports err with the status its type maps to.
func (h *Handler) writeFailure(w http.ResponseWriter, message string, err error) {
	h.writeError(w, message+": "+err.Error(), statusFor(err))
}

func (h *Handler) writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write response", "err", err)
	}
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func statusFor(err error) int {
	var (
		decodeErr    *imageio.DecodeError
		configErr    *layout.ConfigurationError
		genErr       *sheet.GenerationError
		mismatchErr  *collection.DimensionMismatchError
		transitionEr *wizard.TransitionError
	)
	switch {
	case errors.Is(err, imageio.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &decodeErr), errors.As(err, &mismatchErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &configErr):
		return http.StatusBadRequest
	case errors.As(err, &genErr):
		return http.StatusInternalServerError
	case errors.As(err, &transitionEr), errors.Is(err, session.ErrWrongStep), errors.Is(err, collection.ErrNotAdjusted):
		return http.StatusConflict
	case errors.Is(err, collection.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrUnknownOp), errors.Is(err, editor.ErrUnknownSlider),
		errors.Is(err, session.ErrUnknownFormat), errors.Is(err, session.ErrUnknownKind),
		errors.Is(err, manifest.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, exists := h.sessionStore.Get(r.PathValue("id"))
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// Close releases every session.
func (h *Handler) Close() {
	for id := range h.sessionStore.GetAll() {
		if s, ok := h.sessionStore.Delete(id); ok {
			s.Close()
		}
	}
}
