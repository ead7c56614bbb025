package imaging

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SpotColor returns a stable, saturated colour for a key such as a spot ID,
// so the same spot is drawn in the same colour on every frame.
func SpotColor(key string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	hue := float64(h.Sum32()%360)
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DrawBox outlines r on img with the given stroke thickness. Pixels outside
// the image are skipped.
func DrawBox(img draw.Image, r image.Rectangle, c color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r = r.Canon()
	bounds := img.Bounds()
	set := func(x, y int) {
		if image.Pt(x, y).In(bounds) {
			img.Set(x, y, c)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			set(x, r.Min.Y+t)
			set(x, r.Max.Y-1-t)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			set(r.Min.X+t, y)
			set(r.Max.X-1-t, y)
		}
	}
}

// DrawLabel writes text with its top-left corner at (x, y) on a dark
// backing strip, using the 7x13 basic font.
func DrawLabel(img draw.Image, x, y int, text string, c color.Color) {
	bounds := img.Bounds()
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height

	x = clamp(x, bounds.Min.X, bounds.Max.X-1)
	y = clamp(y, bounds.Min.Y, bounds.Max.Y-1)

	backing := image.Rect(x-2, y-2, x+width+2, y+height+2).Intersect(bounds)
	draw.Draw(img, backing, image.NewUniform(color.RGBA{0, 0, 0, 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Ascent)},
	}
	d.DrawString(text)
}

// AnnotateSpot draws a spot outline with a plate label just above it.
func AnnotateSpot(img draw.Image, r image.Rectangle, spotID, label string) {
	c := SpotColor(spotID)
	DrawBox(img, r, c, 2)
	DrawLabel(img, r.Min.X, r.Min.Y-basicfont.Face7x13.Height-4, label, c)
}
