package detection

import (
	"context"
	"image"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// DefaultMinConfidence is the confidence below which detections are dropped.
const DefaultMinConfidence = 0.40

// Detector finds plates and parking spots in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error) {
	return f(ctx, frame)
}

// FilterConfident keeps boxes with confidence at or above min, in order.
func FilterConfident(boxes []anpr.DetectionBox, min float64) []anpr.DetectionBox {
	kept := make([]anpr.DetectionBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence >= min {
			kept = append(kept, b)
		}
	}
	return kept
}

// Split separates boxes by class, preserving detector order within each
// group. Boxes with an unknown class are dropped.
func Split(boxes []anpr.DetectionBox) (plates, free, occupied []anpr.DetectionBox) {
	for _, b := range boxes {
		switch b.Class {
		case anpr.ClassPlate:
			plates = append(plates, b)
		case anpr.ClassFree:
			free = append(free, b)
		case anpr.ClassOccupied:
			occupied = append(occupied, b)
		}
	}
	return plates, free, occupied
}

// Multi runs several detectors in sequence and concatenates their boxes,
// e.g. a plate model followed by a parking-spot model. The first error
// aborts the run.
type Multi []Detector

// Detect runs each detector in order.
func (m Multi) Detect(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error) {
	var all []anpr.DetectionBox
	for _, d := range m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		boxes, err := d.Detect(ctx, frame)
		if err != nil {
			return nil, err
		}
		all = append(all, boxes...)
	}
	return all, nil
}
