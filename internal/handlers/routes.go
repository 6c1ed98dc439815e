package handlers

import (
	"log/slog"
	"net/http"
)

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/formats", h.HandleFormats)

	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionDetail)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("PUT /api/sessions/{id}/format", h.HandleFormat)
	mux.HandleFunc("POST /api/sessions/{id}/step", h.HandleStep)

	mux.HandleFunc("POST /api/sessions/{id}/images", h.HandleUpload)
	mux.HandleFunc("DELETE /api/sessions/{id}/images/{img}", h.HandleRemoveImage)
	mux.HandleFunc("POST /api/sessions/{id}/images/{img}/edit", h.HandleEdit)
	mux.HandleFunc("GET /api/sessions/{id}/images/{img}/preview.png", h.HandlePreview)
	mux.HandleFunc("POST /api/sessions/{id}/images/{img}/finalize", h.HandleFinalize)
	mux.HandleFunc("POST /api/sessions/{id}/images/{img}/processed", h.HandleProcessed)
	mux.HandleFunc("GET /api/sessions/{id}/images/{img}/{file}", h.HandleBitmap)
	mux.HandleFunc("PUT /api/sessions/{id}/images/{img}/quantity", h.HandleQuantity)

	mux.HandleFunc("GET /api/sessions/{id}/sheet.pdf", h.HandleSheet)
	mux.HandleFunc("GET /api/sessions/{id}/manifest", h.HandleManifest)

	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}
