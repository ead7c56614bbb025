package imaging

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// PreprocessOptions tunes the plate enhancement pipeline.
type PreprocessOptions struct {
	// CanonicalWidth is the width every crop is resized to before OCR.
	CanonicalWidth int `mapstructure:"canonical_width"`

	BilateralDiameter int     `mapstructure:"bilateral_diameter"`
	SigmaColor        float64 `mapstructure:"sigma_color"`
	SigmaSpace        float64 `mapstructure:"sigma_space"`

	// ClipLimit and Tiles configure CLAHE (Tiles × Tiles grid).
	ClipLimit float64 `mapstructure:"clip_limit"`
	Tiles     int     `mapstructure:"tiles"`

	// AdaptiveBlock must be odd and at least 3.
	AdaptiveBlock  int     `mapstructure:"adaptive_block"`
	AdaptiveOffset float64 `mapstructure:"adaptive_offset"`
}

// DefaultPreprocessOptions returns the tuning used for plate crops.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		CanonicalWidth:    400,
		BilateralDiameter: 11,
		SigmaColor:        17,
		SigmaSpace:        17,
		ClipLimit:         2.0,
		Tiles:             8,
		AdaptiveBlock:     11,
		AdaptiveOffset:    2,
	}
}

// Validate reports option values the pipeline cannot run with.
func (o PreprocessOptions) Validate() error {
	if o.CanonicalWidth <= 0 {
		return fmt.Errorf("canonical width must be positive, got %d", o.CanonicalWidth)
	}
	if o.BilateralDiameter <= 0 || o.SigmaColor <= 0 || o.SigmaSpace <= 0 {
		return fmt.Errorf("bilateral parameters must be positive")
	}
	if o.Tiles <= 0 {
		return fmt.Errorf("tiles must be positive, got %d", o.Tiles)
	}
	if o.AdaptiveBlock < 3 || o.AdaptiveBlock%2 == 0 {
		return fmt.Errorf("adaptive block must be odd and >= 3, got %d", o.AdaptiveBlock)
	}
	return nil
}

// VariantSet holds every image derived from one plate crop.
//
// All variants share the canonical dimensions. A, B and C are binary
// (values 0 or 255).
type VariantSet struct {
	Original *image.NRGBA // resized crop
	Gray     *image.Gray
	Contrast *image.Gray // denoised + CLAHE
	A        *image.Gray // Otsu
	B        *image.Gray // adaptive Gaussian
	C        *image.Gray // sharpen + Otsu
}

// Preprocess derives the enhanced and binarized variants of a plate crop.
//
// Parameters:
//   - crop: The plate region, typically from ExtractRegion.
//   - opts: Pipeline tuning; see DefaultPreprocessOptions.
//
// Returns:
//   - *VariantSet: All derived variants at the canonical width.
//   - error: ErrEmptyRegion for a zero-pixel crop, or an option error.
//
// # Pipeline
//
//  1. Resize to CanonicalWidth with Catmull-Rom cubic interpolation,
//     preserving aspect ratio.
//  2. Convert to grayscale.
//  3. Bilateral edge-preserving denoise.
//  4. CLAHE local contrast enhancement.
//  5. Three binarizations of the contrast image: Otsu (A), adaptive
//     Gaussian (B), and sharpen followed by Otsu (C).
//
// The function is stateless and safe to call concurrently.
func Preprocess(crop image.Image, opts PreprocessOptions) (*VariantSet, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, ErrEmptyRegion
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preprocess options: %w", err)
	}

	resized := imaging.Resize(crop, opts.CanonicalWidth, 0, imaging.CatmullRom)
	if resized.Bounds().Empty() {
		return nil, ErrEmptyRegion
	}

	gray := grayFromRGBA(effect.Grayscale(resized))
	denoised := bilateralFilter(gray, opts.BilateralDiameter, opts.SigmaColor, opts.SigmaSpace)
	contrast := clahe(denoised, opts.ClipLimit, opts.Tiles, opts.Tiles)

	return &VariantSet{
		Original: resized,
		Gray:     gray,
		Contrast: contrast,
		A:        otsuBinarize(contrast),
		B:        adaptiveThreshold(contrast, opts.AdaptiveBlock, opts.AdaptiveOffset),
		C:        otsuBinarize(sharpen(contrast)),
	}, nil
}
