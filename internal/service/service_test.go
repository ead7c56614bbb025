package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/detection"
	"github.com/ironsheep/anpr-parking/internal/ocr"
	"github.com/ironsheep/anpr-parking/internal/parking"
	"github.com/ironsheep/anpr-parking/internal/source"
	"github.com/ironsheep/anpr-parking/internal/store"
	"github.com/ironsheep/anpr-parking/internal/tracker"
)

// scriptedEngine answers every OCR call with the same text.
type scriptedEngine struct {
	text string
}

func (e *scriptedEngine) ReadText(ctx context.Context, img image.Image, mode ocr.Mode, whitelist string) (string, error) {
	return e.text, nil
}

// failingStore breaks ToggleOpen to simulate an unreachable database.
type failingStore struct {
	store.Gateway
}

func (failingStore) ToggleOpen(ctx context.Context, rec anpr.OpenRecord) (store.Toggle, error) {
	return store.Toggle{}, errors.New("connection refused")
}

var (
	plateBox = anpr.DetectionBox{CenterX: 100, CenterY: 60, Width: 120, Height: 30, Confidence: 0.9, Class: anpr.ClassPlate}
	spotA    = anpr.DetectionBox{CenterX: 60, CenterY: 200, Width: 60, Height: 80, Confidence: 0.8, Class: anpr.ClassFree}
	spotB    = anpr.DetectionBox{CenterX: 200, CenterY: 200, Width: 60, Height: 80, Confidence: 0.8, Class: anpr.ClassFree}
	weakSpot = anpr.DetectionBox{CenterX: 300, CenterY: 200, Width: 60, Height: 80, Confidence: 0.2, Class: anpr.ClassFree}
)

// createFrame returns a gray frame with a light plate area drawn at plateBox.
func createFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			c := color.RGBA{90, 90, 90, 255}
			if x >= 40 && x < 160 && y >= 45 && y < 75 {
				c = color.RGBA{230, 230, 230, 255}
				if y > 52 && y < 68 && (x-40)%14 < 5 {
					c = color.RGBA{15, 15, 15, 255}
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestService(t *testing.T, text string, boxes []anpr.DetectionBox, gw store.Gateway) *Service {
	t.Helper()
	if gw == nil {
		gw = store.NewMemory()
	}
	log := zerolog.Nop()
	alloc := parking.New(gw, 0, log)
	det := detection.DetectorFunc(func(ctx context.Context, frame image.Image) ([]anpr.DetectionBox, error) {
		return boxes, nil
	})
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.FrameInterval = 0
	return New(det, ocr.NewGenerator(&scriptedEngine{text: text}, 2, log), tracker.New(gw, alloc, log), alloc, gw, cfg, log)
}

func TestRecognize_EntryExitEntry(t *testing.T) {
	svc := newTestService(t, "KL4567", nil, nil)
	ctx := context.Background()
	frame := createFrame()
	dets := []anpr.DetectionBox{plateBox}

	want := []anpr.EventStatus{anpr.EventEntry, anpr.EventExit, anpr.EventEntry}
	for i, status := range want {
		events, err := svc.Recognize(ctx, frame, dets)
		if err != nil {
			t.Fatalf("Recognize %d failed: %v", i, err)
		}
		if len(events) != 1 {
			t.Fatalf("Recognize %d: got %d events, want 1", i, len(events))
		}
		if events[0].Plate != "KL4567" || events[0].Status != status {
			t.Errorf("Recognize %d: got %s %s, want KL4567 %s", i, events[0].Plate, events[0].Status, status)
		}
		if status == anpr.EventExit && events[0].Duration < 0 {
			t.Errorf("exit duration should be non-negative, got %v", events[0].Duration)
		}
	}

	state, err := svc.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if len(state.OpenRecords) != 1 || state.OpenRecords[0].Snapshot == "" {
		t.Errorf("state should hold one open record with a snapshot, got %+v", state.OpenRecords)
	}
}

func TestRecognize_AllocatesFirstFreeSpot(t *testing.T) {
	svc := newTestService(t, "AB1234", nil, nil)
	ctx := context.Background()

	res, err := svc.recognize(ctx, createFrame(), []anpr.DetectionBox{plateBox, weakSpot, spotA, spotB})
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if len(res.FreeSpots) != 2 {
		t.Errorf("weak spot should be filtered, got %d free spots", len(res.FreeSpots))
	}
	if len(res.Allocations) != 1 {
		t.Fatalf("allocations: got %d, want 1", len(res.Allocations))
	}
	if got, want := res.Allocations[0].SpotID, parking.SpotID(spotA, parking.DefaultGridSize); got != want {
		t.Errorf("allocated %s, want first free spot %s", got, want)
	}
	if svc.CurrentFrame() == nil {
		t.Error("current frame should be set after a cycle")
	}
}

func TestRecognize_SkipsUnreadableBoxes(t *testing.T) {
	outside := anpr.DetectionBox{CenterX: 900, CenterY: 900, Width: 50, Height: 20, Confidence: 0.9, Class: anpr.ClassPlate}
	flat := anpr.DetectionBox{CenterX: 100, CenterY: 60, Width: 0, Height: 30, Confidence: 0.9, Class: anpr.ClassPlate}

	svc := newTestService(t, "AB1234", nil, nil)
	events, err := svc.Recognize(context.Background(), createFrame(), []anpr.DetectionBox{outside, flat})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events: got %v, want none", events)
	}
}

func TestRecognize_NoTextNoEvent(t *testing.T) {
	svc := newTestService(t, "A1", nil, nil)
	events, err := svc.Recognize(context.Background(), createFrame(), []anpr.DetectionBox{plateBox})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("short readings should produce no event, got %v", events)
	}
}

func TestRecognize_DedupWindow(t *testing.T) {
	svc := newTestService(t, "AB1234", nil, nil)
	svc.cfg.DedupWindow = 5 * time.Second
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	frame := createFrame()
	dets := []anpr.DetectionBox{plateBox}

	first, _ := svc.Recognize(ctx, frame, dets)
	second, _ := svc.Recognize(ctx, frame, dets)
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("within window: got %d then %d events, want 1 then 0", len(first), len(second))
	}

	now = now.Add(6 * time.Second)
	third, _ := svc.Recognize(ctx, frame, dets)
	if len(third) != 1 || third[0].Status != anpr.EventExit {
		t.Errorf("after window: got %+v, want one exit", third)
	}
}

func TestRecognize_StoreFailure(t *testing.T) {
	svc := newTestService(t, "AB1234", nil, failingStore{store.NewMemory()})
	_, err := svc.Recognize(context.Background(), createFrame(), []anpr.DetectionBox{plateBox})
	if err == nil {
		t.Fatal("store failure should surface to the caller")
	}

	if _, err := svc.Recognize(context.Background(), nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil frame: got %v, want ErrInvalidInput", err)
	}
}

func TestAllocate(t *testing.T) {
	svc := newTestService(t, "AB1234", []anpr.DetectionBox{spotA}, nil)
	ctx := context.Background()

	if _, err := svc.Allocate(ctx, "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty plate: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Allocate(ctx, "GHOST1", createFrame()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown plate: got %v, want store.ErrNotFound", err)
	}

	// Entry with no spots in view.
	out, err := svc.tracker.Observe(ctx, tracker.Observation{Plate: "AB1234"})
	if err != nil || !out.NoSpot {
		t.Fatalf("entry: got %+v, %v", out, err)
	}

	alloc, err := svc.Allocate(ctx, "AB1234", createFrame())
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	state, _ := svc.CurrentState(ctx)
	if state.OpenRecords[0].AssignedSpotID != alloc.SpotID {
		t.Errorf("open record spot: got %q, want %q", state.OpenRecords[0].AssignedSpotID, alloc.SpotID)
	}

	if _, err := svc.tracker.Observe(ctx, tracker.Observation{Plate: "CD5678"}); err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if _, err := svc.Allocate(ctx, "CD5678", createFrame()); !errors.Is(err, parking.ErrNoSpotAvailable) {
		t.Errorf("second allocation: got %v, want ErrNoSpotAvailable", err)
	}
}

// countingSource wraps a source and records Close.
type countingSource struct {
	source.FrameSource
	closed atomic.Bool
}

func (c *countingSource) Close() error {
	c.closed.Store(true)
	return c.FrameSource.Close()
}

func TestRun_SingleFrame(t *testing.T) {
	svc := newTestService(t, "AB1234", []anpr.DetectionBox{plateBox}, nil)
	svc.cfg.Loop = false
	src := &countingSource{FrameSource: source.NewSingle(createFrame())}

	if err := svc.Run(context.Background(), src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !src.closed.Load() {
		t.Error("Run should close the frame source")
	}
	state, err := svc.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if len(state.OpenRecords) != 1 || state.OpenRecords[0].PlateText != "AB1234" {
		t.Errorf("open records: got %+v", state.OpenRecords)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	svc := newTestService(t, "AB1234", nil, nil)
	svc.cfg.FrameInterval = 5 * time.Millisecond
	src := &countingSource{FrameSource: source.NewSingle(createFrame())}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Run(ctx, src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !src.closed.Load() {
		t.Error("Run should close the frame source on cancellation")
	}
}

// stuckSource cannot rewind once exhausted.
type stuckSource struct {
	*countingSource
}

func (stuckSource) Restart() error {
	return errors.New("device gone")
}

func TestRun_ClosesSourceOnRestartFailure(t *testing.T) {
	svc := newTestService(t, "AB1234", nil, nil)
	svc.cfg.Loop = true
	counting := &countingSource{FrameSource: source.NewSingle(createFrame())}

	err := svc.Run(context.Background(), stuckSource{counting})
	if err == nil {
		t.Fatal("Run should fail when the source cannot restart")
	}
	if !counting.closed.Load() {
		t.Error("Run should close the frame source on an error exit")
	}
}

func TestReadPlate_SelectsCorrectedText(t *testing.T) {
	// Lower case with a digit in the letter zone and a letter in the digit zone.
	svc := newTestService(t, "k14S67", nil, nil)

	reading, ok, err := svc.ReadPlate(context.Background(), createFrame(), plateBox)
	if err != nil || !ok {
		t.Fatalf("ReadPlate: ok=%v err=%v", ok, err)
	}
	if reading.Text != "KI4567" {
		t.Errorf("text: got %q, want KI4567", reading.Text)
	}
	if len(reading.Candidates) == 0 || reading.Candidates[0].CleanedText != reading.Text {
		t.Errorf("top candidate should match the selected text, got %+v", reading.Candidates)
	}
}
