//go:build cgo

// Package tesseract provides an ocr.Engine backed by the Tesseract OCR
// engine through gosseract.
//
// # Prerequisites
//
// Tesseract and its English language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng libtesseract-dev
//   - macOS: brew install tesseract
//
// A custom model directory can be supplied with Config.TessdataPrefix;
// otherwise the TESSDATA_PREFIX environment variable or the system default
// is used.
//
// # Concurrency
//
// A gosseract client is not safe for concurrent use, so every ReadText call
// creates and closes its own client. Engine itself is safe to share.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/anpr-parking/internal/ocr"
)

// Config selects the language and model location.
type Config struct {
	Language       string `mapstructure:"language"`
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
}

// Engine recognizes plate text with Tesseract.
type Engine struct {
	cfg Config
}

// New creates an Engine. An empty language defaults to "eng".
func New(cfg Config) *Engine {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Engine{cfg: cfg}
}

// ReadText performs OCR on img with the given segmentation mode and
// character whitelist.
//
// Parameters:
//   - ctx: Checked before the image is handed to Tesseract; a run in progress
//     cannot be interrupted.
//   - img: Image to recognize. It is encoded to PNG in memory.
//   - mode: Page segmentation mode.
//   - whitelist: Allowed characters; empty allows all.
//
// Returns:
//   - string: Raw recognized text, trimmed by gosseract.
//   - error: Non-nil if encoding or any Tesseract call fails.
//
// Dictionary correction is disabled: plates are not words.
func (e *Engine) ReadText(ctx context.Context, img image.Image, mode ocr.Mode, whitelist string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(e.cfg.Language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(pageSegMode(mode)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return "", fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := disableDictionaries(client); err != nil {
		return "", err
	}

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}

// dictionaryVariables turn off Tesseract's word lists.
var dictionaryVariables = []gosseract.SettableVariable{"load_system_dawg", "load_freq_dawg"}

func disableDictionaries(client *gosseract.Client) error {
	for _, key := range dictionaryVariables {
		if err := client.SetVariable(key, "false"); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Info describes the OCR backend for health reporting.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
	Language  string `json:"language"`
}

// Info reports the linked Tesseract version.
func (e *Engine) Info() Info {
	client := gosseract.NewClient()
	defer client.Close()
	return Info{
		Available: true,
		Version:   client.Version(),
		Backend:   "gosseract",
		Language:  e.cfg.Language,
	}
}

func pageSegMode(mode ocr.Mode) gosseract.PageSegMode {
	switch mode {
	case ocr.ModeLine:
		return gosseract.PSM_SINGLE_LINE
	case ocr.ModeBlock:
		return gosseract.PSM_SINGLE_BLOCK
	default:
		return gosseract.PSM_SINGLE_WORD
	}
}
