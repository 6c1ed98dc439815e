package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
)

// HandleSheet generates the PDF and sends it as a download. Calling it again
// from the complete step downloads the sheet again.
func (h *Handler) HandleSheet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	result, err := s.Generate()
	if err != nil {
		h.writeFailure(w, "Failed to generate PDF", err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("X-Sheet-Pages", strconv.Itoa(result.Layout.Pages))
	w.Header().Set("X-Sheet-Photos", strconv.Itoa(result.Layout.Tiles()))
	h.writeBytes(w, "application/pdf", result.PDF)
}

// HandleManifest describes every tile position of the current layout.
// ?format= selects jsonl (default), parquet or yaml.
func (h *Handler) HandleManifest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = manifest.FormatJSONL
	}
	rows, err := s.Manifest()
	if err != nil {
		h.writeFailure(w, "Failed to plan layout", err)
		return
	}
	var buf bytes.Buffer
	if err := manifest.WriteTo(&buf, format, rows); err != nil {
		h.writeFailure(w, "Failed to write manifest", err)
		return
	}
	h.writeBytes(w, manifest.ContentType(format), buf.Bytes())
}
