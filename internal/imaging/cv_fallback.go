//go:build !cgo

package imaging

import (
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/blur"
)

// bilateralFilter smooths a grayscale image while keeping strong edges.
//
// Each output pixel is a weighted mean over a circular neighbourhood of the
// given diameter. The weight of a neighbour is the product of a spatial
// Gaussian (sigmaSpace, in pixels) and a range Gaussian on the intensity
// difference (sigmaColor, in gray levels), so pixels across a character
// stroke contribute little and the stroke edge survives.
// Border pixels use clamped (replicated) edge values.
func bilateralFilter(src *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return dst
	}

	radius := diameter / 2
	if radius < 1 {
		radius = 1
	}

	var colorWeight [256]float64
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	type tap struct {
		dx, dy int
		w      float64
	}
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	taps := make([]tap, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, w: math.Exp(float64(d2) * spaceCoeff)})
		}
	}

	at := func(x, y int) int {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return int(src.Pix[y*src.Stride+x])
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			center := at(x, y)
			var sum, norm float64
			for _, t := range taps {
				v := at(x+t.dx, y+t.dy)
				diff := v - center
				if diff < 0 {
					diff = -diff
				}
				w := t.w * colorWeight[diff]
				sum += float64(v) * w
				norm += w
			}
			dst.Pix[y*dst.Stride+x] = uint8(math.Round(sum / norm))
		}
	}
	return dst
}

// clahe performs contrast-limited adaptive histogram equalization.
//
// The image is split into a tilesX × tilesY grid. Each tile gets its own
// equalization lookup table built from a histogram clipped at
// clipLimit × (tile area / 256); the clipped excess is redistributed evenly
// across all bins. Output pixels are bilinearly interpolated between the
// lookup tables of the four nearest tile centres to avoid block seams.
func clahe(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return dst
	}

	tilesX = clamp(tilesX, 1, width)
	tilesY = clamp(tilesY, 1, height)

	at := func(x, y int) uint8 {
		return src.Pix[y*src.Stride+x]
	}

	xEdges := tileEdges(width, tilesX)
	yEdges := tileEdges(height, tilesY)

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			var hist [256]int
			for y := yEdges[ty]; y < yEdges[ty+1]; y++ {
				for x := xEdges[tx]; x < xEdges[tx+1]; x++ {
					hist[at(x, y)]++
				}
			}
			area := (xEdges[tx+1] - xEdges[tx]) * (yEdges[ty+1] - yEdges[ty])
			luts[ty*tilesX+tx] = equalizationLUT(hist, area, clipLimit)
		}
	}

	xCenters := tileCenters(xEdges)
	yCenters := tileCenters(yEdges)
	xIdx, xFrac := interpolationWeights(width, xCenters)
	yIdx, yFrac := interpolationWeights(height, yCenters)

	for y := 0; y < height; y++ {
		ty0 := yIdx[y]
		ty1 := minInt(ty0+1, tilesY-1)
		ay := yFrac[y]
		for x := 0; x < width; x++ {
			tx0 := xIdx[x]
			tx1 := minInt(tx0+1, tilesX-1)
			ax := xFrac[x]
			v := at(x, y)

			top := (1-ax)*float64(luts[ty0*tilesX+tx0][v]) + ax*float64(luts[ty0*tilesX+tx1][v])
			bottom := (1-ax)*float64(luts[ty1*tilesX+tx0][v]) + ax*float64(luts[ty1*tilesX+tx1][v])
			dst.Pix[y*dst.Stride+x] = uint8(math.Round((1-ay)*top + ay*bottom))
		}
	}
	return dst
}

// equalizationLUT builds a clipped histogram-equalization table.
func equalizationLUT(hist [256]int, area int, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	if area == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	if clipLimit > 0 {
		limit := int(clipLimit * float64(area) / 256)
		if limit < 1 {
			limit = 1
		}
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		bonus := excess / 256
		residual := excess % 256
		for i := range hist {
			hist[i] += bonus
		}
		if residual > 0 {
			step := 256 / residual
			if step < 1 {
				step = 1
			}
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	scale := 255.0 / float64(area)
	cdf := 0
	for i := range hist {
		cdf += hist[i]
		lut[i] = uint8(clamp(int(math.Round(float64(cdf)*scale)), 0, 255))
	}
	return lut
}

// tileEdges splits n pixels into count contiguous, non-empty spans.
func tileEdges(n, count int) []int {
	edges := make([]int, count+1)
	for i := 0; i <= count; i++ {
		edges[i] = i * n / count
	}
	return edges
}

func tileCenters(edges []int) []float64 {
	centers := make([]float64, len(edges)-1)
	for i := range centers {
		centers[i] = float64(edges[i]+edges[i+1]-1) / 2
	}
	return centers
}

// interpolationWeights returns, for every coordinate, the index of the tile
// centre at or before it and the fractional distance toward the next one.
func interpolationWeights(n int, centers []float64) ([]int, []float64) {
	idx := make([]int, n)
	frac := make([]float64, n)
	t := 0
	for p := 0; p < n; p++ {
		pos := float64(p)
		for t+1 < len(centers) && centers[t+1] <= pos {
			t++
		}
		idx[p] = t
		switch {
		case pos <= centers[0]:
			frac[p] = 0
		case t+1 >= len(centers):
			frac[p] = 0
		default:
			frac[p] = (pos - centers[t]) / (centers[t+1] - centers[t])
		}
	}
	return idx, frac
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// otsuLevel returns the global threshold that maximizes the between-class
// variance of the image histogram. Pixels strictly above the level are
// foreground-white after binarization.
func otsuLevel(src *image.Gray) uint8 {
	var hist [256]int
	bounds := src.Bounds()
	total := 0
	for y := 0; y < bounds.Dy(); y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+bounds.Dx()]
		for _, v := range row {
			hist[v]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var sumBack float64
	weightBack := 0
	bestLevel := 0
	bestVariance := -1.0
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t * hist[t])
		meanBack := sumBack / float64(weightBack)
		meanFore := (sumAll - sumBack) / float64(weightFore)
		diff := meanBack - meanFore
		variance := float64(weightBack) * float64(weightFore) * diff * diff
		if variance > bestVariance {
			bestVariance = variance
			bestLevel = t
		}
	}
	return uint8(bestLevel)
}

// adaptiveThreshold binarizes against a Gaussian-weighted local mean.
//
// A pixel becomes 255 when its value exceeds (local mean - offset), else 0.
// The neighbourhood size follows blockSize the way a Gaussian adaptive
// threshold with an odd block does; sigma is derived from the block size.
func adaptiveThreshold(src *image.Gray, blockSize int, offset float64) *image.Gray {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return dst
	}

	// blur.Gaussian weights taps by exp(-x²/4r), i.e. sigma² = 2r.
	sigma := 0.3*(float64(blockSize-1)*0.5-1) + 0.8
	mean := blur.Gaussian(src, sigma*sigma/2)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := float64(src.Pix[y*src.Stride+x])
			m := float64(mean.Pix[y*mean.Stride+x*4])
			if v > m-offset {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// minAreaRectAngle finds the minimum-area enclosing rectangle with rotating
// calipers over the convex hull and reports the angle of its sides in
// [-90, 0) degrees, measured with the y axis pointing up.
func minAreaRectAngle(points []point) (float64, bool) {
	hull := convexHull(points)
	if len(hull) < 2 {
		return 0, false
	}

	bestArea := math.Inf(1)
	bestTheta := 0.0
	found := false
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		dx := b.x - a.x
		dy := b.y - a.y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length
		vx, vy := -uy, ux

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := p.x*vx + p.y*vy
			minU = math.Min(minU, u)
			maxU = math.Max(maxU, u)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		area := (maxU - minU) * (maxV - minV)
		if area < bestArea-1e-9 {
			bestArea = area
			bestTheta = math.Atan2(-dy, dx) * 180 / math.Pi
			found = true
		}
	}
	if !found {
		return 0, false
	}

	m := math.Mod(bestTheta, 90)
	if m < 0 {
		m += 90
	}
	return m - 90, true
}

// convexHull returns the hull of the points in counter-clockwise order
// using Andrew's monotone chain. Collinear points are dropped.
func convexHull(points []point) []point {
	if len(points) < 3 {
		return append([]point(nil), points...)
	}

	sorted := append([]point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}

	hull := make([]point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// rotateGray rotates an image about its centre by angle degrees
// (counter-clockwise positive as displayed). The output keeps the input
// size; samples falling outside the source replicate the nearest edge.
func rotateGray(src *image.Gray, angle float64) *image.Gray {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))

	rad := angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx := float64(width-1) / 2
	cy := float64(height-1) / 2

	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(src.Pix[y*src.Stride+x])
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := cx + cos*dx - sin*dy
			sy := cy + sin*dx + cos*dy

			x0 := int(math.Floor(sx))
			y0 := int(math.Floor(sy))
			fx := sx - float64(x0)
			fy := sy - float64(y0)

			top := (1-fx)*at(x0, y0) + fx*at(x0+1, y0)
			bottom := (1-fx)*at(x0, y0+1) + fx*at(x0+1, y0+1)
			v := (1-fy)*top + fy*bottom
			dst.Pix[y*dst.Stride+x] = uint8(clamp(int(math.Round(v)), 0, 255))
		}
	}
	return dst
}
