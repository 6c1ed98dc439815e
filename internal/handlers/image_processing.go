package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/photosheet/internal/collection"
	"github.com/lehigh-university-libraries/photosheet/internal/editor"
)

type bitmapInfo struct {
	ImageID string `json:"image_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func bitmapResponse(id string, bm collection.Bitmap) bitmapInfo {
	return bitmapInfo{ImageID: id, Width: bm.Width, Height: bm.Height}
}

// HandleEdit applies a list of editor ops. The body is either a JSON array
// of ops or {"ops": [...]}.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	var raw json.RawMessage
	if !h.decodeJSON(w, r, &raw) {
		return
	}
	var ops []editor.Op
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		if err := json.Unmarshal(raw, &ops); err != nil {
			h.writeError(w, "Invalid ops: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		var request struct {
			Ops []editor.Op `json:"ops"`
		}
		if err := json.Unmarshal(raw, &request); err != nil {
			h.writeError(w, "Invalid ops: "+err.Error(), http.StatusBadRequest)
			return
		}
		ops = request.Ops
	}

	st, err := s.Edit(r.Context(), r.PathValue("img"), ops...)
	if err != nil {
		h.writeFailure(w, "Edit failed", err)
		return
	}
	h.writeJSON(w, st)
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	data, err := s.Preview(r.Context(), r.PathValue("img"))
	if err != nil {
		h.writeFailure(w, "Preview failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeBytes(w, "image/png", data)
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	imageID := r.PathValue("img")
	bm, err := s.Finalize(r.Context(), imageID)
	if err != nil {
		h.writeFailure(w, "Finalize failed", err)
		return
	}
	h.writeJSON(w, bitmapResponse(imageID, bm))
}

// HandleBitmap serves one stored bitmap. Raw bitmaps are the original upload
// bytes; the others are PNG.
func (h *Handler) HandleBitmap(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	kind := strings.TrimSuffix(r.PathValue("file"), ".png")
	data, err := s.Bitmap(r.PathValue("img"), kind)
	if err != nil {
		h.writeFailure(w, "Bitmap unavailable", err)
		return
	}
	h.writeBytes(w, http.DetectContentType(data), data)
}

func (h *Handler) HandleQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	var request struct {
		Quantity int `json:"quantity"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	imageID := r.PathValue("img")
	n, err := s.SetQuantity(imageID, request.Quantity)
	if err != nil {
		h.writeFailure(w, "Failed to set quantity", err)
		return
	}
	h.writeJSON(w, map[string]any{"image_id": imageID, "quantity": n})
}

func (h *Handler) HandleRemoveImage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	if err := s.Remove(r.PathValue("img")); err != nil {
		h.writeFailure(w, "Failed to remove image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
