package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used for snapshots and the annotated frame.
const DefaultJPEGQuality = 85

// Load opens and decodes an image file, applying EXIF orientation.
//
// Supported formats are those registered with the imaging library
// (JPEG, PNG, GIF, TIFF, BMP).
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return img, nil
}

// Decode reads an image from r, applying EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEGBase64 encodes img as a standard-base64 JPEG string, the form
// stored as a plate snapshot.
func EncodeJPEGBase64(img image.Image) (string, error) {
	data, err := EncodeJPEG(img, DefaultJPEGQuality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// CloneRGBA copies img into a new, writable RGBA image re-based at (0,0).
func CloneRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
