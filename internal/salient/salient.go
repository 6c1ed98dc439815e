// Package salient locates the region of a photo the editor should center on,
// usually the subject's face.
//
// Detection is best-effort. Callers treat "no region" and errors alike and
// fall back to a centered image.
package salient

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
)

// Detector finds the salient region of img in img's coordinate space. ok is
// false when there is no confident estimate.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (region image.Rectangle, ok bool, err error)
}

// None never finds a region.
type None struct{}

func (None) Detect(context.Context, image.Image) (image.Rectangle, bool, error) {
	return image.Rectangle{}, false, nil
}

// fallback tries primary and falls back to secondary when primary errors.
type fallback struct {
	primary   Detector
	secondary Detector
}

// WithFallback returns a Detector that uses secondary whenever primary fails.
func WithFallback(primary, secondary Detector) Detector {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) Detect(ctx context.Context, img image.Image) (image.Rectangle, bool, error) {
	r, ok, err := f.primary.Detect(ctx, img)
	if err == nil {
		return r, ok, nil
	}
	slog.Warn("Salient region detector failed, using fallback", "err", err)
	return f.secondary.Detect(ctx, img)
}

// Timeout bounds every call to d.
func Timeout(d Detector, timeout time.Duration) Detector {
	if timeout <= 0 {
		return d
	}
	return &timed{d: d, timeout: timeout}
}

type timed struct {
	d       Detector
	timeout time.Duration
}

func (t *timed) Detect(ctx context.Context, img image.Image) (image.Rectangle, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.d.Detect(ctx, img)
}

// Options configures the detector built by New.
type Options struct {
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	Timeout      time.Duration
}

// Provider names accepted by New.
const (
	ProviderBrightness = "brightness"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderNone       = "none"
)

// New builds the detector for provider. Model-backed detectors fall back to
// the brightness heuristic when they fail.
func New(provider string, opts Options) (Detector, error) {
	var d Detector
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderBrightness:
		return NewBrightness(), nil
	case ProviderNone:
		return None{}, nil
	case ProviderGemini:
		d = NewGemini(opts.GeminiAPIKey, opts.GeminiModel)
	case ProviderOllama:
		d = NewOllama(opts.OllamaURL, opts.OllamaModel)
	case ProviderOpenAI:
		d = NewOpenAI(opts.OpenAIAPIKey, opts.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown saliency provider %q", provider)
	}
	return WithFallback(Timeout(d, opts.Timeout), NewBrightness()), nil
}
