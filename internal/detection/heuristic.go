package detection

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// edgeThreshold is the minimum gray-level step counted as an edge.
const edgeThreshold = 30.0

// plateWindows are the sliding-window sizes searched, roughly the 4:1
// aspect of a licence plate at typical camera distances.
var plateWindows = []struct{ w, h int }{
	{90, 24},
	{120, 30},
	{160, 40},
	{200, 50},
}

// Heuristic finds plate-like regions without a trained model.
//
// It looks for windows with medium edge density dominated by vertical
// strokes, the texture a row of characters produces. It is a fallback for
// running without a hosted detector and only ever reports plate boxes.
type Heuristic struct {
	minConfidence float64
}

// NewHeuristic creates a heuristic plate detector.
func NewHeuristic(minConfidence float64) *Heuristic {
	return &Heuristic{minConfidence: minConfidence}
}

// Detect returns merged plate candidates, most confident first.
func (h *Heuristic) Detect(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error) {
	bounds := frame.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	strokes, rows := edgeIntegrals(frame, width, height)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]region, 0)
	for _, ws := range plateWindows {
		if ws.w > width || ws.h > height {
			continue
		}
		stepX := ws.w / 2
		stepY := ws.h / 2
		area := float64(ws.w * ws.h)

		for y := 0; y <= height-ws.h; y += stepY {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for x := 0; x <= width-ws.w; x += stepX {
				vertical := strokes.sum(x, y, ws.w, ws.h)
				horizontal := rows.sum(x, y, ws.w, ws.h)
				density := float64(vertical+horizontal) / area

				// Characters give medium density: not blank, not noise.
				if density < 0.05 || density > 0.45 {
					continue
				}
				strokeScore := float64(vertical) / float64(vertical+horizontal)
				confidence := strokeScore * math.Max(0, 1.0-math.Abs(density-0.2)/0.2)
				if confidence < h.minConfidence {
					continue
				}
				candidates = append(candidates, region{
					rect:       image.Rect(x, y, x+ws.w, y+ws.h),
					confidence: math.Round(confidence*1000) / 1000,
				})
			}
		}
	}

	merged := mergeOverlapping(candidates)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].confidence > merged[j].confidence
	})

	boxes := make([]anpr.DetectionBox, 0, len(merged))
	for _, r := range merged {
		rect := r.rect.Add(bounds.Min)
		boxes = append(boxes, anpr.DetectionBox{
			CenterX:    float64(rect.Min.X+rect.Max.X) / 2,
			CenterY:    float64(rect.Min.Y+rect.Max.Y) / 2,
			Width:      float64(rect.Dx()),
			Height:     float64(rect.Dy()),
			Confidence: r.confidence,
			Class:      anpr.ClassPlate,
		})
	}
	return boxes, nil
}

type region struct {
	rect       image.Rectangle
	confidence float64
}

// integral is a summed-area table over a binary mask.
type integral struct {
	stride int
	data   []int
}

// sum counts set pixels in the w×h window at (x, y).
func (in integral) sum(x, y, w, h int) int {
	at := func(x, y int) int { return in.data[y*in.stride+x] }
	return at(x+w, y+h) - at(x, y+h) - at(x+w, y) + at(x, y)
}

// edgeIntegrals detects edges with a forward-difference gradient and
// returns summed-area tables of vertical-stroke edges (step along x) and
// horizontal edges (step along y only). Border pixels are never edges.
func edgeIntegrals(img image.Image, width, height int) (integral, integral) {
	bounds := img.Bounds()
	gray := make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray[y*width+x] = grayValue(img, x+bounds.Min.X, y+bounds.Min.Y)
		}
	}

	stride := width + 1
	vertical := integral{stride: stride, data: make([]int, stride*(height+1))}
	horizontal := integral{stride: stride, data: make([]int, stride*(height+1))}

	for y := 0; y < height; y++ {
		rowV, rowH := 0, 0
		for x := 0; x < width; x++ {
			if x > 0 && y > 0 && x < width-1 && y < height-1 {
				c := float64(gray[y*width+x])
				dx := math.Abs(c - float64(gray[y*width+x+1]))
				dy := math.Abs(c - float64(gray[(y+1)*width+x]))
				if dx > edgeThreshold {
					rowV++
				} else if dy > edgeThreshold {
					rowH++
				}
			}
			i := (y+1)*stride + x + 1
			vertical.data[i] = vertical.data[i-stride] + rowV
			horizontal.data[i] = horizontal.data[i-stride] + rowH
		}
	}
	return vertical, horizontal
}

// grayValue converts a pixel to grayscale using ITU-R BT.601 luminance weights.
func grayValue(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114)
}

// mergeOverlapping folds overlapping regions into their union, keeping the
// higher confidence. Regions are visited in input order.
func mergeOverlapping(regions []region) []region {
	merged := make([]region, 0, len(regions))
	for _, r := range regions {
		found := false
		for i := range merged {
			if r.rect.Overlaps(merged[i].rect) {
				merged[i].rect = merged[i].rect.Union(r.rect)
				merged[i].confidence = math.Max(r.confidence, merged[i].confidence)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, r)
		}
	}
	return merged
}
