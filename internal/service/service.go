// Package service runs the per-frame recognition cycle and exposes the
// operations the HTTP layer calls.
//
// A frame goes through detection, per-plate cropping, preprocessing, OCR
// and scoring; each accepted plate is then handed to the tracker, which
// records entry or exit and allocates or releases a spot. The service owns
// the latest annotated frame and a short window of recently seen plates.
// Detection and OCR run without holding the service lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/detection"
	"github.com/ironsheep/anpr-parking/internal/imaging"
	"github.com/ironsheep/anpr-parking/internal/ocr"
	"github.com/ironsheep/anpr-parking/internal/parking"
	"github.com/ironsheep/anpr-parking/internal/store"
	"github.com/ironsheep/anpr-parking/internal/tracker"
)

// ErrInvalidInput is returned for requests missing a plate or frame.
var ErrInvalidInput = errors.New("invalid input")

// plateBoxColor outlines recognized plates on the current frame.
var plateBoxColor = color.RGBA{0, 220, 0, 255}

// Config tunes the recognition cycle.
type Config struct {
	// MinConfidence drops weaker detections.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// DedupWindow suppresses repeat readings of a plate inside the window.
	// Zero disables suppression.
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	// FrameInterval is the minimum time between ingested frames.
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	// Loop restarts the frame source when it ends.
	Loop bool `mapstructure:"loop"`

	Preprocess imaging.PreprocessOptions `mapstructure:"preprocess"`
}

// DefaultConfig returns the default cycle settings.
func DefaultConfig() Config {
	return Config{
		MinConfidence: detection.DefaultMinConfidence,
		DedupWindow:   5 * time.Second,
		FrameInterval: 200 * time.Millisecond,
		Loop:          true,
		Preprocess:    imaging.DefaultPreprocessOptions(),
	}
}

// Reading is one plate read from a frame.
type Reading struct {
	Text       string                `json:"text"`
	Snapshot   string                `json:"image"`
	Box        anpr.DetectionBox     `json:"box"`
	Candidates []anpr.PlateCandidate `json:"candidates,omitempty"`
	// Suppressed is true when the reading fell inside the dedup window and
	// produced no event.
	Suppressed bool `json:"suppressed,omitempty"`
}

// FrameResult is everything one recognition cycle produced.
type FrameResult struct {
	Readings    []Reading           `json:"plates"`
	Events      []anpr.PlateEvent   `json:"notifications"`
	Allocations []anpr.Allocation   `json:"allocations,omitempty"`
	FreeSpots   []anpr.DetectionBox `json:"free_spots,omitempty"`
}

// Service is the recognition core.
type Service struct {
	detector  detection.Detector
	generator *ocr.Generator
	tracker   *tracker.Tracker
	allocator *parking.Allocator
	store     store.Gateway
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	frame     *image.RGBA
	freeSpots []anpr.DetectionBox
	recent    map[string]time.Time
}

// New wires a service. The tracker and allocator must share gw.
func New(
	detector detection.Detector,
	generator *ocr.Generator,
	tr *tracker.Tracker,
	allocator *parking.Allocator,
	gw store.Gateway,
	cfg Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		detector:  detector,
		generator: generator,
		tracker:   tr,
		allocator: allocator,
		store:     gw,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		recent:    make(map[string]time.Time),
	}
}

// ProcessFrame detects objects in frame and runs the recognition cycle.
func (s *Service) ProcessFrame(ctx context.Context, frame image.Image) (*FrameResult, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame", ErrInvalidInput)
	}
	boxes, err := s.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	return s.recognize(ctx, frame, boxes)
}

// Recognize runs the recognition cycle over detections already made on
// frame and returns the entry and exit events it produced.
func (s *Service) Recognize(ctx context.Context, frame image.Image, detections []anpr.DetectionBox) ([]anpr.PlateEvent, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame", ErrInvalidInput)
	}
	res, err := s.recognize(ctx, frame, detections)
	if res == nil {
		return nil, err
	}
	return res.Events, err
}

// recognize returns a partial result alongside any store error, so events
// committed before the failure are still reported.
func (s *Service) recognize(ctx context.Context, frame image.Image, detections []anpr.DetectionBox) (*FrameResult, error) {
	confident := detection.FilterConfident(detections, s.cfg.MinConfidence)
	plates, free, _ := detection.Split(confident)

	canvas := imaging.CloneRGBA(frame)
	res := &FrameResult{
		Readings:  make([]Reading, 0, len(plates)),
		Events:    make([]anpr.PlateEvent, 0, len(plates)),
		FreeSpots: free,
	}

	var cycleErr error
	for _, box := range plates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		reading, ok, err := s.readPlate(ctx, frame, box)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}

		imaging.DrawBox(canvas, box.Corners(), plateBoxColor, 2)
		imaging.DrawLabel(canvas, box.Corners().Min.X, box.Corners().Max.Y+2, reading.Text, plateBoxColor)

		if !s.admit(reading.Text) {
			reading.Suppressed = true
			res.Readings = append(res.Readings, reading)
			s.log.Debug().Str("plate", reading.Text).Msg("Repeat reading suppressed")
			continue
		}
		res.Readings = append(res.Readings, reading)

		out, err := s.tracker.Observe(ctx, tracker.Observation{
			Plate:     reading.Text,
			Snapshot:  reading.Snapshot,
			FreeSpots: free,
			Frame:     canvas,
		})
		if out != nil {
			res.Events = append(res.Events, out.Event)
			if out.Allocation != nil {
				res.Allocations = append(res.Allocations, *out.Allocation)
			}
		}
		if err != nil {
			// The store is unreachable or inconsistent; stop this cycle.
			s.forget(reading.Text)
			cycleErr = err
			break
		}
	}

	s.mu.Lock()
	s.frame = canvas
	s.freeSpots = free
	s.mu.Unlock()

	return res, cycleErr
}

// readPlate crops, preprocesses and reads one plate box. ok is false when
// the box yields no trustworthy text; err is only the context's.
func (s *Service) readPlate(ctx context.Context, frame image.Image, box anpr.DetectionBox) (Reading, bool, error) {
	crop, err := imaging.ExtractRegion(frame, box)
	if err != nil {
		s.log.Debug().Err(err).Float64("x", box.CenterX).Float64("y", box.CenterY).Msg("Skipping plate box")
		return Reading{}, false, nil
	}

	variants, err := imaging.Preprocess(crop, s.cfg.Preprocess)
	if err != nil {
		s.log.Warn().Err(err).Msg("Preprocessing failed")
		return Reading{}, false, nil
	}

	raws, err := s.generator.Generate(ctx, variants)
	if err != nil {
		return Reading{}, false, err
	}
	text := ocr.Select(raws)
	if text == "" {
		s.log.Debug().Msg("No plausible text in plate box")
		return Reading{}, false, nil
	}

	snapshot, err := imaging.EncodeJPEGBase64(variants.A)
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot encoding failed")
	}

	return Reading{
		Text:       text,
		Snapshot:   snapshot,
		Box:        box,
		Candidates: ocr.Rank(raws),
	}, true, nil
}

// admit reports whether plate is outside the dedup window and, if so,
// marks it seen now.
func (s *Service) admit(plate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cfg.DedupWindow > 0 {
		if last, ok := s.recent[plate]; ok && now.Sub(last) < s.cfg.DedupWindow {
			return false
		}
		for p, seen := range s.recent {
			if now.Sub(seen) >= s.cfg.DedupWindow {
				delete(s.recent, p)
			}
		}
	}
	s.recent[plate] = now
	return true
}

func (s *Service) forget(plate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recent, plate)
}

// Allocate assigns a spot to an open plate.
//
// With a frame, spots are detected on it; without one, the free spots and
// canvas of the most recent frame are used. Returns
// parking.ErrNoSpotAvailable when nothing is free and store.ErrNotFound
// when the plate is not open.
func (s *Service) Allocate(ctx context.Context, plate string, frame image.Image) (*anpr.Allocation, error) {
	if plate == "" {
		return nil, fmt.Errorf("%w: empty plate", ErrInvalidInput)
	}

	var (
		free   []anpr.DetectionBox
		canvas *image.RGBA
	)
	if frame != nil {
		boxes, err := s.detector.Detect(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("detection failed: %w", err)
		}
		_, free, _ = detection.Split(detection.FilterConfident(boxes, s.cfg.MinConfidence))
		canvas = imaging.CloneRGBA(frame)
	} else {
		s.mu.Lock()
		free = append([]anpr.DetectionBox(nil), s.freeSpots...)
		if s.frame != nil {
			canvas = imaging.CloneRGBA(s.frame)
		}
		s.mu.Unlock()
	}

	var alloc *anpr.Allocation
	var err error
	if canvas != nil {
		alloc, err = s.allocator.Assign(ctx, plate, free, canvas)
	} else {
		alloc, err = s.allocator.Assign(ctx, plate, free, nil)
	}
	if err != nil {
		return nil, err
	}

	box := alloc.Box
	if err := s.store.SetAssignedSpot(ctx, plate, alloc.SpotID, &box); err != nil {
		return alloc, fmt.Errorf("failed to record spot for %s: %w", plate, err)
	}

	if canvas != nil {
		s.mu.Lock()
		s.frame = canvas
		s.mu.Unlock()
	}
	return alloc, nil
}

// CurrentState returns the open records, newest first, and the spot table.
func (s *Service) CurrentState(ctx context.Context) (*anpr.State, error) {
	records, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open records: %w", err)
	}
	spots, err := s.allocator.Spots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	return &anpr.State{OpenRecords: records, Spots: spots}, nil
}

// CurrentFrame returns a copy of the latest annotated frame, or nil before
// the first frame.
func (s *Service) CurrentFrame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil
	}
	return imaging.CloneRGBA(s.frame)
}

// ReadPlate reads the plate in box without touching the tracker or the
// dedup window. ok is false when no trustworthy text was found.
func (s *Service) ReadPlate(ctx context.Context, frame image.Image, box anpr.DetectionBox) (Reading, bool, error) {
	if frame == nil {
		return Reading{}, false, fmt.Errorf("%w: no frame", ErrInvalidInput)
	}
	return s.readPlate(ctx, frame, box)
}
