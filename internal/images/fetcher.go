package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
)

const octetStream = "application/octet-stream"

// Fetcher retrieves photos from remote URLs
type Fetcher struct {
	HTTPClient *http.Client
	// MaxBytes caps the download size; zero means imageio.MaxUploadBytes.
	MaxBytes int64
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Image is a downloaded photo
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fetch downloads the image at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != "" && !strings.HasPrefix(mt, "image/") && mt != octetStream {
		return nil, fmt.Errorf("URL did not return an image (content type %s)", mt)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = imageio.MaxUploadBytes
	}
	imageData, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(imageData)) > limit {
		return nil, imageio.ErrTooLarge
	}
	if mt == "" || mt == octetStream {
		// untyped body; take the type from the image header
		_, format, err := imageio.Config(imageData)
		if err != nil {
			return nil, err
		}
		contentType = "image/" + format
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Host
	}
	slog.Debug("Downloaded image", "url", rawURL, "bytes", len(imageData), "content_type", contentType)
	return &Image{Name: name, ContentType: contentType, Data: imageData}, nil
}
