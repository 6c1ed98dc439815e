package salient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/photosheet/internal/gemini"
	"github.com/lehigh-university-libraries/photosheet/internal/ollama"
	"github.com/lehigh-university-libraries/photosheet/internal/openai"
	"github.com/lehigh-university-libraries/photosheet/internal/providers"
)

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaModel = "llava"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// maxUploadSide bounds the image sent to a vision model.
const maxUploadSide = 1024

const prompt = `Find the face of the main person in this photo.
Respond with a single JSON object and nothing else:
{"found": true, "box_2d": [ymin, xmin, ymax, xmax]}
with coordinates normalized to 0-1000, or {"found": false} if there is no face.`

// Vision asks a multimodal LLM for the face bounding box.
type Vision struct {
	Provider providers.Provider
	Model    string
}

// NewGemini returns a Gemini-backed detector.
func NewGemini(apiKey, model string) *Vision {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Vision{Provider: gemini.New(apiKey), Model: model}
}

// NewOllama returns an Ollama-backed detector.
func NewOllama(url, model string) *Vision {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Vision{Provider: ollama.New(url), Model: model}
}

// NewOpenAI returns an OpenAI-backed detector.
func NewOpenAI(apiKey, model string) *Vision {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &Vision{Provider: openai.New(apiKey), Model: model}
}

func (v *Vision) Detect(ctx context.Context, img image.Image) (image.Rectangle, bool, error) {
	sent := imaging.Fit(img, maxUploadSide, maxUploadSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sent, &jpeg.Options{Quality: 85}); err != nil {
		return image.Rectangle{}, false, fmt.Errorf("failed to encode image for detector: %w", err)
	}

	text, err := v.Provider.ExtractText(ctx, providers.Config{
		Model:  v.Model,
		Prompt: prompt,
		Image:  buf.Bytes(),
		JSON:   true,
	})
	if err != nil {
		return image.Rectangle{}, false, err
	}
	return ParseBox(text, img.Bounds())
}

// ParseBox reads a {"found", "box_2d"} answer and maps the normalized box
// onto bounds.
func ParseBox(text string, bounds image.Rectangle) (image.Rectangle, bool, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var answer struct {
		Found *bool     `json:"found"`
		Box   []float64 `json:"box_2d"`
	}
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return image.Rectangle{}, false, fmt.Errorf("failed to parse detector response: %w", err)
	}
	if answer.Found != nil && !*answer.Found {
		return image.Rectangle{}, false, nil
	}
	if len(answer.Box) != 4 {
		return image.Rectangle{}, false, fmt.Errorf("detector returned %d box coordinates, want 4", len(answer.Box))
	}

	norm := func(v float64) float64 { return math.Min(math.Max(v, 0), 1000) / 1000 }
	ymin, xmin, ymax, xmax := norm(answer.Box[0]), norm(answer.Box[1]), norm(answer.Box[2]), norm(answer.Box[3])
	if xmax <= xmin || ymax <= ymin {
		return image.Rectangle{}, false, nil
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(math.Round(xmin*w)),
		bounds.Min.Y+int(math.Round(ymin*h)),
		bounds.Min.X+int(math.Round(xmax*w)),
		bounds.Min.Y+int(math.Round(ymax*h)),
	)
	if r.Empty() {
		return image.Rectangle{}, false, nil
	}
	return r, true, nil
}
