// Package tracker turns accepted plate readings into entry and exit events.
//
// A plate is either open (a vehicle with that text is believed present) or
// absent. Each reading flips it. Matching is exact on the cleaned text, so an
// OCR misread on entry or exit shows up as an unmatched entry rather than
// being reconciled.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image/draw"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/parking"
	"github.com/ironsheep/anpr-parking/internal/store"
)

// Observation is one accepted plate reading.
type Observation struct {
	Plate    string
	Snapshot string // base64 JPEG stored with the open record
	// FreeSpots are the free-spot detections of the same frame, in
	// detector order. They are only used on entry.
	FreeSpots []anpr.DetectionBox
	// Frame, when set, is annotated with any spot assigned on entry.
	Frame draw.Image
}

// Outcome reports what an observation did.
type Outcome struct {
	Event      anpr.PlateEvent
	Allocation *anpr.Allocation
	// NoSpot is true when an entry found no free spot.
	NoSpot bool
}

// Tracker applies the entry/exit rule against the store.
type Tracker struct {
	store     store.Gateway
	allocator *parking.Allocator
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a tracker.
func New(gw store.Gateway, allocator *parking.Allocator, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     gw,
		allocator: allocator,
		now:       time.Now,
		log:       log,
	}
}

// Observe records a reading of obs.Plate. An open plate exits, releasing its
// spot; an absent plate enters and is offered a spot. Running out of spots
// is reported in the Outcome, not as an error.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (*Outcome, error) {
	if obs.Plate == "" {
		return nil, errors.New("empty plate text")
	}
	now := t.now()

	toggled, err := t.store.ToggleOpen(ctx, anpr.OpenRecord{
		PlateText: obs.Plate,
		EntryTime: now,
		Snapshot:  obs.Snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update plate state: %w", err)
	}

	if !toggled.Entered {
		return t.exit(ctx, obs.Plate, toggled.Record, now)
	}
	return t.enter(ctx, obs, now)
}

func (t *Tracker) exit(ctx context.Context, plate string, rec anpr.OpenRecord, now time.Time) (*Outcome, error) {
	duration := now.Sub(rec.EntryTime)
	if duration < 0 {
		duration = 0
	}
	out := &Outcome{Event: anpr.PlateEvent{
		Plate:     plate,
		Status:    anpr.EventExit,
		Timestamp: now,
		Duration:  duration,
	}}

	spotID, err := t.allocator.Release(ctx, plate)
	if err != nil {
		// The exit is already committed; report it with the error.
		return out, fmt.Errorf("exit of %s recorded but spot release failed: %w", plate, err)
	}
	out.Event.SpotID = spotID

	t.log.Info().
		Str("plate", plate).
		Dur("duration", duration).
		Str("spot", spotID).
		Msg("Vehicle exited")
	return out, nil
}

func (t *Tracker) enter(ctx context.Context, obs Observation, now time.Time) (*Outcome, error) {
	out := &Outcome{Event: anpr.PlateEvent{
		Plate:     obs.Plate,
		Status:    anpr.EventEntry,
		Timestamp: now,
	}}

	alloc, err := t.allocator.Assign(ctx, obs.Plate, obs.FreeSpots, obs.Frame)
	switch {
	case errors.Is(err, parking.ErrNoSpotAvailable):
		out.NoSpot = true
		t.log.Info().Str("plate", obs.Plate).Msg("Vehicle entered, no free spot")
		return out, nil
	case errors.Is(err, store.ErrNotFound):
		// A concurrent reading already closed this entry.
		return out, nil
	case err != nil:
		return out, fmt.Errorf("entry of %s recorded but allocation failed: %w", obs.Plate, err)
	}

	out.Allocation = alloc
	out.Event.SpotID = alloc.SpotID
	box := alloc.Box
	if err := t.store.SetAssignedSpot(ctx, obs.Plate, alloc.SpotID, &box); err != nil && !errors.Is(err, store.ErrNotFound) {
		return out, fmt.Errorf("failed to record spot for %s: %w", obs.Plate, err)
	}

	t.log.Info().Str("plate", obs.Plate).Str("spot", alloc.SpotID).Msg("Vehicle entered")
	return out, nil
}
