// Package background removes the background behind the subject of an
// adjusted photo.
package background

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
)

// Segmenter returns img with its background removed. The result must have
// the same dimensions as img.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (image.Image, error)
}

// Passthrough returns its input unchanged.
type Passthrough struct{}

func (Passthrough) Segment(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

// Remote posts the image to an HTTP background-removal service that
// answers with the cut-out image, such as rembg or remove.bg.
type Remote struct {
	URL string
	// Field is the multipart field carrying the image.
	Field  string
	APIKey string
	Client *http.Client
}

// NewRemote returns a Remote segmenter for url.
func NewRemote(url, apiKey string, timeout time.Duration) *Remote {
	return &Remote{
		URL:    url,
		Field:  "image_file",
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := imageio.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(r.Field, "photo.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if r.APIKey != "" {
		req.Header.Set("X-Api-Key", r.APIKey)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(msg))
	}

	out, err := imageio.Decode("background removal response", resp.Body)
	if err != nil {
		return nil, err
	}
	want := img.Bounds().Size()
	if out.Bounds().Size() != want {
		slog.Debug("Resizing background removal output", "from", out.Bounds().Size(), "to", want)
		out = imaging.Resize(out, want.X, want.Y, imaging.Lanczos)
	}
	return out, nil
}

// Timeout bounds every call to s.
func Timeout(s Segmenter, timeout time.Duration) Segmenter {
	if timeout <= 0 {
		return s
	}
	return &timed{s: s, timeout: timeout}
}

type timed struct {
	s       Segmenter
	timeout time.Duration
}

func (t *timed) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.s.Segment(ctx, img)
}

// fallback never fails: when the wrapped segmenter errors, the input is
// returned unchanged so the wizard can continue.
type fallback struct {
	s Segmenter
}

// WithFallback wraps s so that a failure degrades to a no-op.
func WithFallback(s Segmenter) Segmenter {
	return &fallback{s: s}
}

func (f *fallback) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	out, err := f.s.Segment(ctx, img)
	if err != nil {
		slog.Warn("Background removal failed, keeping the adjusted photo", "err", err)
		return img, nil
	}
	if out.Bounds().Size() != img.Bounds().Size() {
		slog.Warn("Background removal changed the photo size, keeping the adjusted photo",
			"want", img.Bounds().Size(), "got", out.Bounds().Size())
		return img, nil
	}
	return out, nil
}

// New returns the automatic segmenter: the remote service when url is set,
// otherwise a no-op. The result never fails.
func New(url, apiKey string, timeout time.Duration) Segmenter {
	if url == "" {
		return Passthrough{}
	}
	return WithFallback(Timeout(NewRemote(url, apiKey, timeout), timeout))
}
