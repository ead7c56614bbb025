package ocr

import (
	"context"
	"image"
	"strings"
)

// PlateWhitelist restricts recognition to the characters a plate can hold.
const PlateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// MinPlateLength is the shortest cleaned reading kept as a candidate.
const MinPlateLength = 4

// Mode selects how the engine segments the page.
type Mode int

const (
	// ModeWord treats the image as a single word.
	ModeWord Mode = iota
	// ModeLine treats the image as a single text line.
	ModeLine
	// ModeBlock treats the image as a uniform block of text, possibly
	// several lines.
	ModeBlock
)

// Modes lists every segmentation mode in generation order.
var Modes = []Mode{ModeWord, ModeLine, ModeBlock}

func (m Mode) String() string {
	switch m {
	case ModeWord:
		return "word"
	case ModeLine:
		return "line"
	case ModeBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Engine recognizes text in an image.
//
// Implementations must be safe for concurrent use; the generator calls
// ReadText from several goroutines at once.
type Engine interface {
	ReadText(ctx context.Context, img image.Image, mode Mode, whitelist string) (string, error)
}

// Clean removes every character that is not an ASCII letter or digit.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
