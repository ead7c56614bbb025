//go:build cgo

package imaging

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// matFromGray copies a grayscale image into a single-channel OpenCV Mat.
// The caller closes the Mat.
func matFromGray(src *image.Gray) (gocv.Mat, error) {
	if src.Bounds().Min != (image.Point{}) || src.Stride != src.Bounds().Dx() {
		src = cloneGray(src)
	}
	return gocv.ImageGrayToMatGray(src)
}

// grayFromMat copies a CV_8U single-channel Mat back into an image.Gray.
func grayFromMat(m gocv.Mat) *image.Gray {
	return &image.Gray{
		Pix:    m.ToBytes(),
		Stride: m.Cols(),
		Rect:   image.Rect(0, 0, m.Cols(), m.Rows()),
	}
}

// applyCV runs one OpenCV operation on a copy of src. If the input cannot be
// converted the result is a copy of the input.
func applyCV(src *image.Gray, op func(in gocv.Mat, out *gocv.Mat)) *image.Gray {
	bounds := src.Bounds()
	if bounds.Empty() {
		return image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	}
	in, err := matFromGray(src)
	if err != nil {
		return cloneGray(src)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	op(in, &out)
	return grayFromMat(out)
}

// bilateralFilter smooths a grayscale image while keeping strong edges.
func bilateralFilter(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	return applyCV(src, func(in gocv.Mat, out *gocv.Mat) {
		gocv.BilateralFilter(in, out, diameter, sigmaColor, sigmaSpace)
	})
}

// clahe performs contrast-limited adaptive histogram equalization over a
// tilesX × tilesY grid.
func clahe(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	return applyCV(src, func(in gocv.Mat, out *gocv.Mat) {
		c := gocv.NewCLAHEWithParams(clipLimit, image.Point{X: tilesX, Y: tilesY})
		defer c.Close()
		c.Apply(in, out)
	})
}

// otsuLevel returns the Otsu threshold of the image. Pixels strictly above
// the level are foreground-white after binarization.
func otsuLevel(src *image.Gray) uint8 {
	var level float32
	applyCV(src, func(in gocv.Mat, out *gocv.Mat) {
		level = gocv.Threshold(in, out, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	})
	return uint8(level)
}

// adaptiveThreshold binarizes against a Gaussian-weighted local mean: a
// pixel becomes 255 when it exceeds (local mean - offset), else 0.
func adaptiveThreshold(src *image.Gray, blockSize int, offset float64) *image.Gray {
	return applyCV(src, func(in gocv.Mat, out *gocv.Mat) {
		gocv.AdaptiveThreshold(in, out, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, blockSize, float32(offset))
	})
}

// minAreaRectAngle reports the side angle of the minimum-area rectangle
// enclosing points, in [-90, 0) degrees with the y axis pointing up.
func minAreaRectAngle(points []point) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	pts := make([]image.Point, len(points))
	for i, p := range points {
		pts[i] = image.Pt(int(math.Round(p.x)), int(math.Round(p.y)))
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	rect := gocv.MinAreaRect(pv)
	if rect.Width == 0 && rect.Height == 0 {
		return 0, false
	}

	// OpenCV measures in image coordinates (y down); flip to y up and fold
	// into a quarter turn, which covers both OpenCV angle conventions.
	m := math.Mod(-rect.Angle, 90)
	if m < 0 {
		m += 90
	}
	return m - 90, true
}

// rotateGray rotates an image about its centre by angle degrees
// (counter-clockwise positive as displayed), keeping the input size and
// replicating edge pixels into the uncovered corners.
func rotateGray(src *image.Gray, angle float64) *image.Gray {
	bounds := src.Bounds()
	return applyCV(src, func(in gocv.Mat, out *gocv.Mat) {
		center := image.Pt(bounds.Dx()/2, bounds.Dy()/2)
		m := gocv.GetRotationMatrix2D(center, angle, 1.0)
		defer m.Close()
		gocv.WarpAffineWithParams(in, out, m, image.Pt(bounds.Dx(), bounds.Dy()),
			gocv.InterpolationLinear, gocv.BorderReplicate, color.RGBA{})
	})
}

func cloneGray(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		copy(dst.Pix[y*dst.Stride:], src.Pix[y*src.Stride:y*src.Stride+bounds.Dx()])
	}
	return dst
}
