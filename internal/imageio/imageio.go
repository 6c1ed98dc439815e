// Package imageio is the decode/encode boundary for user-supplied images.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	// extra decoders; imaging already registers jpeg, png, gif, bmp and tiff
	_ "golang.org/x/image/webp"
)

// MaxUploadBytes bounds a single uploaded image.
const MaxUploadBytes = 10 * 1024 * 1024

// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
var ErrTooLarge = errors.New("image too large (max 10MB)")

// DecodeError reports an image whose bytes could not be turned into a bitmap.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads an image from r, honoring EXIF orientation.
func Decode(name string, r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	if len(data) > MaxUploadBytes {
		return nil, &DecodeError{Name: name, Err: ErrTooLarge}
	}
	return DecodeBytes(name, data)
}

// DecodeBytes decodes data, honoring EXIF orientation.
func DecodeBytes(name string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Name: name, Err: errors.New("empty file")}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Name: name, Err: errors.New("image has no pixels")}
	}
	return img, nil
}

// EncodePNG encodes img as an 8-bit PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.Gray, *image.Paletted:
	default:
		img = imaging.Clone(img)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Config returns the dimensions and format name of an encoded image
// without decoding its pixels.
func Config(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", &DecodeError{Err: err}
	}
	return cfg, format, nil
}
