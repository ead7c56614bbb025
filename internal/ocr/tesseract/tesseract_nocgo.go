//go:build !cgo

package tesseract

import (
	"context"
	"errors"
	"image"

	"github.com/ironsheep/anpr-parking/internal/ocr"
)

// ErrUnavailable is returned by every call when the binary was built
// without cgo, which gosseract requires.
var ErrUnavailable = errors.New("tesseract unavailable: built without cgo")

// Config selects the language and model location.
type Config struct {
	Language       string `mapstructure:"language"`
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
}

// Engine is a stand-in that always fails.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Engine{cfg: cfg}
}

// ReadText always returns ErrUnavailable.
func (e *Engine) ReadText(ctx context.Context, img image.Image, mode ocr.Mode, whitelist string) (string, error) {
	return "", ErrUnavailable
}

// Info describes the OCR backend for health reporting.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
	Language  string `json:"language"`
}

// Info reports that OCR is unavailable.
func (e *Engine) Info() Info {
	return Info{Available: false, Backend: "none (built without cgo)", Language: e.cfg.Language}
}
