package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/convolution"
)

// otsuBinarize thresholds the image at its Otsu level: values above the
// level become 255, the rest 0.
func otsuBinarize(src *image.Gray) *image.Gray {
	return thresholdAbove(src, otsuLevel(src))
}

// thresholdAbove maps values strictly above level to 255 and the rest to 0.
func thresholdAbove(src *image.Gray, level uint8) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+bounds.Dx()]
		for x, v := range row {
			if v > level {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// sharpen applies the 3x3 unsharp kernel
//
//	 0 -1  0
//	-1  5 -1
//	 0 -1  0
//
// and returns the result as grayscale. Values saturate at 0 and 255.
func sharpen(src *image.Gray) *image.Gray {
	k := convolution.NewKernel(3, 3)
	copy(k.Matrix, []float64{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	})
	sharpened := convolution.Convolve(src, k, &convolution.Options{Bias: 0, Wrap: false, KeepAlpha: false})
	return grayFromRGBA(sharpened)
}

// grayFromRGBA keeps the red channel of an RGBA image whose channels are
// already equal, as produced by bild's grayscale and convolution outputs.
func grayFromRGBA(src *image.RGBA) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = src.Pix[y*src.Stride+x*4]
		}
	}
	return dst
}
