// Package parking hands free parking spots to vehicles that have entered
// and takes them back when they leave.
//
// Spots are identified by the position of their detection box. Because the
// detector reports the same painted bay with slightly different coordinates
// every frame, the box centre is snapped to a grid before forming the ID.
// Distinct bays whose centres share a grid cell are told apart by box
// overlap and get a numbered suffix.
package parking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/anpr-parking/internal/anpr"
	"github.com/ironsheep/anpr-parking/internal/imaging"
	"github.com/ironsheep/anpr-parking/internal/store"
)

// DefaultGridSize is the spot-ID quantization step in pixels.
const DefaultGridSize = 25

// sameSpotIoU is the box overlap at which two detections are one bay.
const sameSpotIoU = 0.5

// maxCellSpots bounds the suffixes tried for one grid cell.
const maxCellSpots = 32

// ErrNoSpotAvailable means no free spot could be assigned. It is an
// expected outcome, not a failure.
var ErrNoSpotAvailable = errors.New("no parking spot available")

// Allocator owns spot status transitions.
type Allocator struct {
	mu    sync.Mutex
	store store.Gateway
	grid  int
	now   func() time.Time
	log   zerolog.Logger
}

// New creates an allocator over gw. A grid of 0 or less uses DefaultGridSize.
func New(gw store.Gateway, grid int, log zerolog.Logger) *Allocator {
	if grid <= 0 {
		grid = DefaultGridSize
	}
	return &Allocator{
		store: gw,
		grid:  grid,
		now:   time.Now,
		log:   log,
	}
}

// SpotID derives a stable identifier from a spot box.
func SpotID(box anpr.DetectionBox, grid int) string {
	if grid <= 0 {
		grid = DefaultGridSize
	}
	qx := int(math.Floor(box.CenterX / float64(grid)))
	qy := int(math.Floor(box.CenterY / float64(grid)))
	return fmt.Sprintf("spot-%d-%d", qx, qy)
}

// Assign gives plate the first free spot in detector order.
//
// Parameters:
//   - plate: Must have an open record.
//   - freeSpots: Free-spot detections for the current frame, in detector order.
//   - canvas: Optional frame to annotate with the spot box and plate text.
//
// Returns:
//   - *anpr.Allocation: The spot assigned. A plate that already holds a
//     spot gets that spot back unchanged.
//   - error: ErrNoSpotAvailable when the list is empty or every listed spot
//     is already occupied; store.ErrNotFound when plate is not open.
func (a *Allocator) Assign(ctx context.Context, plate string, freeSpots []anpr.DetectionBox, canvas draw.Image) (*anpr.Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.store.GetOpen(ctx, plate); err != nil {
		return nil, fmt.Errorf("cannot allocate for %s: %w", plate, err)
	}

	held, err := a.heldBy(ctx, plate)
	if err != nil {
		return nil, err
	}
	if held != nil {
		return &anpr.Allocation{SpotID: held.ID, Plate: plate, Box: held.Box, AssignedAt: held.UpdatedAt}, nil
	}

	for _, box := range freeSpots {
		if !box.Usable() {
			continue
		}
		id, occupied, err := a.resolve(ctx, box)
		if err != nil {
			return nil, err
		}
		if occupied || id == "" {
			continue
		}

		rect := box.Corners()
		now := a.now()
		spot := anpr.ParkingSpot{
			ID:            id,
			Status:        anpr.SpotOccupied,
			AssignedPlate: plate,
			Box:           anpr.BoxFromRect(rect),
			UpdatedAt:     now,
		}
		if err := a.store.UpsertSpot(ctx, spot); err != nil {
			return nil, fmt.Errorf("failed to occupy spot %s: %w", id, err)
		}

		if canvas != nil {
			imaging.AnnotateSpot(canvas, rect, id, plate)
		}
		a.log.Info().Str("plate", plate).Str("spot", id).Msg("Parking spot assigned")
		return &anpr.Allocation{SpotID: id, Plate: plate, Box: spot.Box, AssignedAt: now}, nil
	}

	return nil, ErrNoSpotAvailable
}

// resolve finds the stored ID for the bay under box and reports whether that
// bay is occupied. An unseen bay gets the first unused ID in its grid cell.
// An empty ID means the cell has no room left. Callers hold mu.
func (a *Allocator) resolve(ctx context.Context, box anpr.DetectionBox) (string, bool, error) {
	base := SpotID(box, a.grid)
	rect := box.Corners()
	for n := 1; n <= maxCellSpots; n++ {
		id := base
		if n > 1 {
			id = fmt.Sprintf("%s-%d", base, n)
		}

		existing, err := a.store.GetSpot(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read spot %s: %w", id, err)
		}
		if overlap(existing.Box.Rect(), rect) >= sameSpotIoU {
			return id, existing.Status == anpr.SpotOccupied, nil
		}
	}
	a.log.Warn().Str("cell", base).Msg("Too many spots in one grid cell")
	return "", false, nil
}

// overlap returns the intersection over union of two rectangles.
func overlap(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// Release frees the spot held by plate and returns its ID. It returns an
// empty ID and no error when plate holds no spot.
func (a *Allocator) Release(ctx context.Context, plate string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	spot, err := a.heldBy(ctx, plate)
	if err != nil || spot == nil {
		return "", err
	}

	spot.Status = anpr.SpotFree
	spot.AssignedPlate = ""
	spot.UpdatedAt = a.now()
	if err := a.store.UpsertSpot(ctx, *spot); err != nil {
		return "", fmt.Errorf("failed to release spot %s: %w", spot.ID, err)
	}
	a.log.Info().Str("plate", plate).Str("spot", spot.ID).Msg("Parking spot released")
	return spot.ID, nil
}

// Spots returns the spot table ordered by ID.
func (a *Allocator) Spots(ctx context.Context) ([]anpr.ParkingSpot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.ListSpots(ctx, "")
}

// heldBy returns the occupied spot assigned to plate, or nil. Callers hold mu.
func (a *Allocator) heldBy(ctx context.Context, plate string) (*anpr.ParkingSpot, error) {
	occupied, err := a.store.ListSpots(ctx, anpr.SpotOccupied)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupied spots: %w", err)
	}
	for i := range occupied {
		if occupied[i].AssignedPlate == plate {
			return &occupied[i], nil
		}
	}
	return nil, nil
}
