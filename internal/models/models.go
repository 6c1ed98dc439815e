package models

import (
	"time"

	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/lehigh-university-libraries/photosheet/internal/transform"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
)

// Session represents one run of the photo sheet wizard
type Session struct {
	ID           string          `json:"id"`
	Step         wizard.Step     `json:"step"`
	Steps        []wizard.Step   `json:"steps"`
	Format       *formats.Format `json:"format,omitempty"`
	CanvasWidth  int             `json:"canvas_width,omitempty"`
	CanvasHeight int             `json:"canvas_height,omitempty"`
	Images       []ImageItem     `json:"images"`
	TotalCopies  int             `json:"total_copies"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ImageItem represents an uploaded photo and its derived bitmaps
type ImageItem struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	ImageWidth  int              `json:"image_width"`
	ImageHeight int              `json:"image_height"`
	Quantity    int              `json:"quantity"`
	Adjusted    bool             `json:"adjusted"`
	Processed   bool             `json:"processed"`
	Ready       bool             `json:"ready"`
	State       *transform.State `json:"state,omitempty"`
}

// UploadFailure is one file rejected during an upload
type UploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadResult lists the images accepted and rejected by one upload
type UploadResult struct {
	IDs      []string        `json:"ids"`
	Failures []UploadFailure `json:"failures,omitempty"`
}
