package imaging

import (
	"image"
	"math"
)

// minDeskewPoints is the minimum number of ink pixels needed to estimate skew.
const minDeskewPoints = 10

// inkLevel separates ink (dark, below) from paper in a binary variant.
const inkLevel = 128

// DeskewResult carries the outcome of a best-effort deskew.
//
// Image is always usable: it is either the rotated image or the input
// unchanged. Applied reports which one it is, and Angle is the rotation
// that was (or would have been) applied, in degrees, counter-clockwise
// positive.
type DeskewResult struct {
	Image   *image.Gray
	Angle   float64
	Applied bool
}

// Deskew straightens the text baseline of a binary plate variant.
//
// The skew is estimated from the minimum-area rotated rectangle enclosing
// all ink pixels. The rectangle angle is reported in [-90, 0) and
// normalized to a single rotation convention: angles below -45 become
// -(90+angle), all others -angle. This resolves the ±90° ambiguity of
// rectangle orientation so the correction is always under 45°.
//
// The image is rotated about its centre with bilinear interpolation and
// replicated borders, keeping the original dimensions.
//
// Deskew never fails. With fewer than 10 ink pixels, degenerate geometry or
// an empty input, the input is returned with Applied=false.
func Deskew(img *image.Gray) DeskewResult {
	if img == nil || img.Bounds().Empty() {
		return DeskewResult{Image: img}
	}

	points := inkPoints(img)
	if len(points) < minDeskewPoints {
		return DeskewResult{Image: img}
	}

	angle, ok := estimateSkew(points)
	if !ok || math.IsNaN(angle) {
		return DeskewResult{Image: img}
	}
	if math.Abs(angle) < 1e-6 {
		return DeskewResult{Image: img, Angle: 0}
	}

	return DeskewResult{
		Image:   rotateGray(img, angle),
		Angle:   angle,
		Applied: true,
	}
}

// inkPoints collects the coordinates of dark pixels, relative to the image origin.
func inkPoints(img *image.Gray) []point {
	bounds := img.Bounds()
	points := make([]point, 0)
	for y := 0; y < bounds.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+bounds.Dx()]
		for x, v := range row {
			if v < inkLevel {
				points = append(points, point{x: float64(x), y: float64(y)})
			}
		}
	}
	return points
}

type point struct {
	x, y float64
}

// estimateSkew returns the normalized correction angle for a point set.
func estimateSkew(points []point) (float64, bool) {
	rectAngle, ok := minAreaRectAngle(points)
	if !ok {
		return 0, false
	}
	return normalizeSkew(rectAngle), true
}

// normalizeSkew maps a rectangle angle in [-90, 0) to a correction angle.
func normalizeSkew(angle float64) float64 {
	if angle < -45 {
		return -(90 + angle)
	}
	return -angle
}

