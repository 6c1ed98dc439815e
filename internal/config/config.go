// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/photosheet/internal/background"
	"github.com/lehigh-university-libraries/photosheet/internal/formats"
	"github.com/lehigh-university-libraries/photosheet/internal/salient"
	"github.com/lehigh-university-libraries/photosheet/internal/storage"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
)

// Config holds every environment-driven setting.
type Config struct {
	DPI             int
	FormatsFile     string
	UploadsDir      string
	DefaultQuantity int
	SkipBackground  bool

	SaliencyProvider string
	SaliencyTimeout  time.Duration
	GeminiAPIKey     string
	GeminiModel      string
	OllamaURL        string
	OllamaModel      string
	OpenAIAPIKey     string
	OpenAIModel      string

	BackgroundURL     string
	BackgroundAPIKey  string
	BackgroundTimeout time.Duration
}

// Load reads the environment. Unset variables get their defaults; malformed
// values are an error.
func Load() (Config, error) {
	c := Config{
		FormatsFile:      os.Getenv("PHOTOSHEET_FORMATS"),
		UploadsDir:       os.Getenv("PHOTOSHEET_UPLOADS_DIR"),
		SaliencyProvider: getEnv("SALIENCY_PROVIDER", salient.ProviderBrightness),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		OllamaURL:        os.Getenv("OLLAMA_URL"),
		OllamaModel:      os.Getenv("OLLAMA_MODEL"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		BackgroundURL:    os.Getenv("BACKGROUND_REMOVAL_URL"),
		BackgroundAPIKey: os.Getenv("BACKGROUND_REMOVAL_API_KEY"),
	}

	var err error
	if c.DPI, err = getInt("PHOTOSHEET_DPI", formats.DefaultDPI); err != nil {
		return c, err
	}
	if c.DPI <= 0 {
		return c, fmt.Errorf("PHOTOSHEET_DPI must be positive, got %d", c.DPI)
	}
	if c.DefaultQuantity, err = getInt("PHOTOSHEET_DEFAULT_QUANTITY", 1); err != nil {
		return c, err
	}
	if c.SkipBackground, err = getBool("PHOTOSHEET_SKIP_BACKGROUND", false); err != nil {
		return c, err
	}
	if c.SaliencyTimeout, err = getDuration("SALIENCY_TIMEOUT", 20*time.Second); err != nil {
		return c, err
	}
	if c.BackgroundTimeout, err = getDuration("BACKGROUND_REMOVAL_TIMEOUT", 60*time.Second); err != nil {
		return c, err
	}
	return c, nil
}

// Catalog returns the built-in formats, merged with FormatsFile when set.
func (c Config) Catalog() (*formats.Catalog, error) {
	return formats.Load(c.FormatsFile)
}

// Blobs returns the bitmap store: files under UploadsDir when set,
// otherwise memory.
func (c Config) Blobs() (storage.BlobStore, error) {
	if c.UploadsDir == "" {
		return storage.NewMemoryBlobs(), nil
	}
	return storage.NewDiskBlobs(c.UploadsDir)
}

// Flow returns the wizard variant.
func (c Config) Flow() wizard.Flow {
	return wizard.Flow{SkipBackgroundRemoval: c.SkipBackground, DefaultQuantity: c.DefaultQuantity}
}

// Detector builds the configured salient-region detector.
func (c Config) Detector() (salient.Detector, error) {
	return salient.New(c.SaliencyProvider, salient.Options{
		GeminiAPIKey: c.GeminiAPIKey,
		GeminiModel:  c.GeminiModel,
		OllamaURL:    c.OllamaURL,
		OllamaModel:  c.OllamaModel,
		OpenAIAPIKey: c.OpenAIAPIKey,
		OpenAIModel:  c.OpenAIModel,
		Timeout:      c.SaliencyTimeout,
	})
}

// Segmenter builds the automatic background remover.
func (c Config) Segmenter() background.Segmenter {
	return background.New(c.BackgroundURL, c.BackgroundAPIKey, c.BackgroundTimeout)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
