package imaging

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// ErrEmptyRegion is returned when a detection box clamps to a zero-area
// region of the frame. Callers skip the box and continue with the batch.
var ErrEmptyRegion = errors.New("empty region")

// ClampedRegion converts a center-format detection box to corner format and
// clamps it to the frame bounds. The returned rectangle may be empty.
func ClampedRegion(bounds image.Rectangle, box anpr.DetectionBox) image.Rectangle {
	if !box.Usable() {
		return image.Rectangle{}
	}
	r := box.Corners().Add(bounds.Min)
	return r.Intersect(bounds)
}

// ExtractRegion crops the area of a detection box out of a frame.
//
// Parameters:
//   - frame: The full source frame.
//   - box: Detection in center format, pixel units relative to the frame origin.
//
// Returns:
//   - *image.NRGBA: The crop, re-based so its bounds start at (0,0).
//   - error: ErrEmptyRegion if the box lies outside the frame or has
//     degenerate dimensions.
//
// # Coordinate Conversion
//
// The box is converted with x1=cx-w/2, y1=cy-h/2, x2=cx+w/2, y2=cy+h/2,
// truncated to whole pixels and clamped to the frame. A box fully inside
// the frame yields a crop of w×h pixels, give or take one pixel of rounding.
func ExtractRegion(frame image.Image, box anpr.DetectionBox) (*image.NRGBA, error) {
	if frame == nil {
		return nil, ErrEmptyRegion
	}
	r := ClampedRegion(frame.Bounds(), box)
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	return imaging.Crop(frame, r), nil
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
