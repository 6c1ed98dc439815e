package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
)

const maxFormMemory = 32 << 20

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	// Check if this is a JSON request with image URL
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		h.handleURLUpload(w, r, s)
		return
	}
	h.handleFileUpload(w, r, s)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var request struct {
		ImageURL string `json:"image_url"`
	}
	if !h.decodeJSON(w, r, &request) {
		return
	}
	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	img, err := h.fetcher.Fetch(r.Context(), request.ImageURL)
	if err != nil {
		h.writeError(w, "Failed to process image URL: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.Upload(r.Context(), session.File{Name: img.Name, Data: img.Data})
	if err != nil {
		h.writeFailure(w, "Failed to add image", err)
		return
	}
	h.writeJSON(w, result)
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request, s *session.Session) {
	files, err := readFormFiles(r, "files", "file")
	if err != nil {
		h.writeError(w, "Failed to read files: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.Upload(r.Context(), files...)
	if err != nil {
		h.writeFailure(w, "Failed to add images", err)
		return
	}
	code := http.StatusOK
	if len(result.IDs) == 0 && len(result.Failures) > 0 {
		code = http.StatusUnprocessableEntity
	}
	h.writeStatusJSON(w, code, result)
}

// HandleProcessed accepts a background-removed photo as a multipart upload,
// or runs the automatic remover for a JSON body of {"auto": true}.
func (h *Handler) HandleProcessed(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}
	imageID := r.PathValue("img")

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var request struct {
			Auto bool `json:"auto"`
		}
		if !h.decodeJSON(w, r, &request) {
			return
		}
		if !request.Auto {
			h.writeError(w, "auto must be true for JSON requests", http.StatusBadRequest)
			return
		}
		bm, err := s.AutoRemoveBackground(r.Context(), imageID)
		if err != nil {
			h.writeFailure(w, "Failed to remove background", err)
			return
		}
		h.writeJSON(w, bitmapResponse(imageID, bm))
		return
	}

	files, err := readFormFiles(r, "file", "files")
	if err != nil {
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(files) != 1 {
		h.writeError(w, "Exactly one file is required", http.StatusBadRequest)
		return
	}
	bm, err := s.SetProcessed(imageID, files[0])
	if err != nil {
		h.writeFailure(w, "Failed to store processed photo", err)
		return
	}
	h.writeJSON(w, bitmapResponse(imageID, bm))
}

// readFormFiles reads every file under the first field name that has any.
func readFormFiles(r *http.Request, fields ...string) ([]session.File, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, err
	}
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		files := make([]session.File, 0, len(headers))
		for _, fh := range headers {
			f, err := readFormFile(fh)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
		return files, nil
	}
	return nil, fmt.Errorf("no file in fields %s", strings.Join(fields, ", "))
}

func readFormFile(fh *multipart.FileHeader) (session.File, error) {
	file, err := fh.Open()
	if err != nil {
		return session.File{}, err
	}
	defer file.Close()

	// One byte past the limit lets the session reject oversized files.
	data, err := io.ReadAll(io.LimitReader(file, imageio.MaxUploadBytes+1))
	if err != nil {
		return session.File{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return session.File{Name: fh.Filename, Data: data}, nil
}
