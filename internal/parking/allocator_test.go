package parking

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/store"
)

func freeBox(cx, cy float64) anpr.DetectionBox {
	return anpr.DetectionBox{CenterX: cx, CenterY: cy, Width: 40, Height: 60, Confidence: 0.9, Class: anpr.ClassFree}
}

// newTestAllocator returns an allocator over an in-memory store with the
// given plates already open.
func newTestAllocator(t *testing.T, plates ...string) (*Allocator, store.Gateway) {
	t.Helper()
	gw := store.NewMemory()
	for _, p := range plates {
		if err := gw.InsertOpen(context.Background(), anpr.OpenRecord{PlateText: p, EntryTime: time.Now()}); err != nil {
			t.Fatalf("InsertOpen failed: %v", err)
		}
	}
	return New(gw, 0, zerolog.Nop()), gw
}

func TestSpotID(t *testing.T) {
	tests := []struct {
		name string
		box  anpr.DetectionBox
		want string
	}{
		{"origin cell", freeBox(10, 10), "spot-0-0"},
		{"jitter stays in cell", freeBox(124.9, 74.2), "spot-4-2"},
		{"next cell", freeBox(125, 75), "spot-5-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpotID(tt.box, DefaultGridSize); got != tt.want {
				t.Errorf("SpotID: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAssign_TwoSpotsThenNone(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234", "CD5678", "EF9012")
	ctx := context.Background()
	spots := []anpr.DetectionBox{freeBox(50, 50), freeBox(200, 50)}

	first, err := alloc.Assign(ctx, "AB1234", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if first.SpotID != "spot-2-2" {
		t.Errorf("first assignment should take the first listed spot, got %s", first.SpotID)
	}

	second, err := alloc.Assign(ctx, "CD5678", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if second.SpotID != "spot-8-2" {
		t.Errorf("second assignment should take the remaining spot, got %s", second.SpotID)
	}

	if _, err := alloc.Assign(ctx, "EF9012", spots, nil); !errors.Is(err, ErrNoSpotAvailable) {
		t.Errorf("third assignment: got %v, want ErrNoSpotAvailable", err)
	}

	table, err := alloc.Spots(ctx)
	if err != nil {
		t.Fatalf("Spots failed: %v", err)
	}
	for _, s := range table {
		if s.Status != anpr.SpotOccupied || s.AssignedPlate == "" {
			t.Errorf("spot %s: got status %s plate %q", s.ID, s.Status, s.AssignedPlate)
		}
	}
}

func TestAssign_SharedGridCell(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234", "CD5678")
	ctx := context.Background()

	// Both centres fall in grid cell (1,1) but the boxes do not overlap.
	small := func(cx float64) anpr.DetectionBox {
		return anpr.DetectionBox{CenterX: cx, CenterY: 30, Width: 10, Height: 10, Confidence: 0.9, Class: anpr.ClassFree}
	}
	spots := []anpr.DetectionBox{small(30), small(42)}

	first, err := alloc.Assign(ctx, "AB1234", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	second, err := alloc.Assign(ctx, "CD5678", spots, nil)
	if err != nil {
		t.Fatalf("second spot in the same cell should be assignable, got %v", err)
	}
	if first.SpotID != "spot-1-1" || second.SpotID != "spot-1-1-2" {
		t.Errorf("spot IDs: got %s and %s, want spot-1-1 and spot-1-1-2", first.SpotID, second.SpotID)
	}
	if second.Box.X1 != 37 {
		t.Errorf("second box: got x1=%d, want 37", second.Box.X1)
	}
}

func TestAssign_JitteredBoxIsSameSpot(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234", "CD5678")
	ctx := context.Background()

	if _, err := alloc.Assign(ctx, "AB1234", []anpr.DetectionBox{freeBox(60, 60)}, nil); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	// Same bay reported a few pixels off is still occupied.
	_, err := alloc.Assign(ctx, "CD5678", []anpr.DetectionBox{freeBox(63, 58)}, nil)
	if !errors.Is(err, ErrNoSpotAvailable) {
		t.Errorf("got %v, want ErrNoSpotAvailable", err)
	}
}

func TestOverlap(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	tests := []struct {
		name string
		b    image.Rectangle
		want float64
	}{
		{"identical", a, 1},
		{"disjoint", image.Rect(20, 20, 30, 30), 0},
		{"half shifted", image.Rect(5, 0, 15, 10), 50.0 / 150.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlap(a, tt.b); got != tt.want {
				t.Errorf("overlap: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssign_EmptyList(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234")
	if _, err := alloc.Assign(context.Background(), "AB1234", nil, nil); !errors.Is(err, ErrNoSpotAvailable) {
		t.Errorf("got %v, want ErrNoSpotAvailable", err)
	}
}

func TestAssign_RequiresOpenRecord(t *testing.T) {
	alloc, _ := newTestAllocator(t)
	_, err := alloc.Assign(context.Background(), "GHOST1", []anpr.DetectionBox{freeBox(50, 50)}, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want store.ErrNotFound", err)
	}
}

func TestAssign_SamePlateKeepsSpot(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234")
	ctx := context.Background()
	spots := []anpr.DetectionBox{freeBox(50, 50), freeBox(200, 50)}

	first, err := alloc.Assign(ctx, "AB1234", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	again, err := alloc.Assign(ctx, "AB1234", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if again.SpotID != first.SpotID {
		t.Errorf("repeat assignment moved spot: %s -> %s", first.SpotID, again.SpotID)
	}
}

func TestRelease_RoundTrip(t *testing.T) {
	alloc, gw := newTestAllocator(t, "AB1234", "CD5678")
	ctx := context.Background()
	spots := []anpr.DetectionBox{freeBox(50, 50)}

	first, err := alloc.Assign(ctx, "AB1234", spots, nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	released, err := alloc.Release(ctx, "AB1234")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if released != first.SpotID {
		t.Errorf("Release returned %q, want %q", released, first.SpotID)
	}

	spot, err := gw.GetSpot(ctx, first.SpotID)
	if err != nil {
		t.Fatalf("GetSpot failed: %v", err)
	}
	if spot.Status != anpr.SpotFree || spot.AssignedPlate != "" {
		t.Errorf("released spot: got status %s plate %q", spot.Status, spot.AssignedPlate)
	}

	next, err := alloc.Assign(ctx, "CD5678", spots, nil)
	if err != nil {
		t.Fatalf("Assign after release failed: %v", err)
	}
	if next.SpotID != first.SpotID {
		t.Errorf("released spot should be selectable again, got %s", next.SpotID)
	}
}

func TestRelease_NoSpotIsNoop(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234")
	id, err := alloc.Release(context.Background(), "AB1234")
	if err != nil {
		t.Fatalf("Release should not fail, got %v", err)
	}
	if id != "" {
		t.Errorf("Release returned %q, want empty", id)
	}
}

func TestAssign_AnnotatesCanvas(t *testing.T) {
	alloc, _ := newTestAllocator(t, "AB1234")
	canvas := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for i := range canvas.Pix {
		canvas.Pix[i] = 255
	}

	alloc.Assign(context.Background(), "AB1234", []anpr.DetectionBox{freeBox(100, 120)}, canvas)

	// Left edge of the spot box: x = 100 - 20.
	if c := canvas.RGBAAt(80, 120); c == (color.RGBA{255, 255, 255, 255}) {
		t.Error("spot outline was not drawn on the canvas")
	}
}
