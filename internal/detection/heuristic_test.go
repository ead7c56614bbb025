package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

// createPlatePatternImage draws character-like vertical bars inside r.
func createPlatePatternImage(width, height int, r image.Rectangle) *image.RGBA {
	img := createTestImage(width, height, color.White)
	for y := r.Min.Y + 5; y < r.Max.Y-5; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if (x-r.Min.X)%12 < 5 {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestHeuristic_FindsPlate(t *testing.T) {
	plate := image.Rect(100, 80, 260, 120)
	img := createPlatePatternImage(400, 200, plate)

	boxes, err := NewHeuristic(DefaultMinConfidence).Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) == 0 {
		t.Fatal("Detect found no plate")
	}

	found := false
	for _, b := range boxes {
		if b.Corners().Overlaps(plate) {
			found = true
		}
		if b.Confidence < DefaultMinConfidence || b.Confidence > 1 {
			t.Errorf("confidence %v outside [%v, 1]", b.Confidence, DefaultMinConfidence)
		}
		if !b.Usable() {
			t.Errorf("box %+v has no area", b)
		}
	}
	if !found {
		t.Errorf("no box overlaps the plate region %v: %+v", plate, boxes)
	}
}

func TestHeuristic_BlankImage(t *testing.T) {
	boxes, err := NewHeuristic(0.1).Detect(context.Background(), createTestImage(300, 200, color.White))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("blank image: got %d boxes, want 0", len(boxes))
	}
}

func TestHeuristic_Checkerboard(t *testing.T) {
	img := createTestImage(200, 100, color.White)
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.Black)
			}
		}
	}

	boxes, err := NewHeuristic(DefaultMinConfidence).Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("checkerboard noise: got %d boxes, want 0", len(boxes))
	}
}

func TestHeuristic_SmallFrame(t *testing.T) {
	boxes, err := NewHeuristic(0.1).Detect(context.Background(), createTestImage(50, 20, color.White))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("frame smaller than every window: got %d boxes", len(boxes))
	}
}

func TestHeuristic_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic(0.4).Detect(ctx, createTestImage(300, 200, color.White))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
}

func TestMergeOverlapping(t *testing.T) {
	regions := []region{
		{rect: image.Rect(0, 0, 10, 10), confidence: 0.5},
		{rect: image.Rect(5, 5, 15, 15), confidence: 0.7},
		{rect: image.Rect(50, 50, 60, 60), confidence: 0.6},
	}

	merged := mergeOverlapping(regions)
	if len(merged) != 2 {
		t.Fatalf("merged: got %d regions, want 2", len(merged))
	}
	if merged[0].rect != image.Rect(0, 0, 15, 15) || merged[0].confidence != 0.7 {
		t.Errorf("first: got %v conf %v, want (0,0)-(15,15) conf 0.7", merged[0].rect, merged[0].confidence)
	}
}
