package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// Memory is a Gateway held entirely in process memory.
type Memory struct {
	mu    sync.Mutex
	open  map[string]anpr.OpenRecord
	spots map[string]anpr.ParkingSpot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		open:  make(map[string]anpr.OpenRecord),
		spots: make(map[string]anpr.ParkingSpot),
	}
}

func (m *Memory) GetOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.open[plate]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) InsertOpen(ctx context.Context, rec anpr.OpenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[rec.PlateText]; ok {
		return ErrDuplicate
	}
	m.open[rec.PlateText] = *cloneRecord(rec)
	return nil
}

func (m *Memory) DeleteOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.open[plate]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.open, plate)
	return &rec, nil
}

func (m *Memory) ListOpen(ctx context.Context) ([]anpr.OpenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]anpr.OpenRecord, 0, len(m.open))
	for _, rec := range m.open {
		out = append(out, *cloneRecord(rec))
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) ToggleOpen(ctx context.Context, rec anpr.OpenRecord) (Toggle, error) {
	if err := ctx.Err(); err != nil {
		return Toggle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.open[rec.PlateText]; ok {
		delete(m.open, rec.PlateText)
		return Toggle{Entered: false, Record: existing}, nil
	}
	m.open[rec.PlateText] = *cloneRecord(rec)
	return Toggle{Entered: true, Record: rec}, nil
}

func (m *Memory) SetAssignedSpot(ctx context.Context, plate, spotID string, box *anpr.Box) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.open[plate]
	if !ok {
		return ErrNotFound
	}
	rec.AssignedSpotID = spotID
	rec.SpotBox = nil
	if spotID != "" && box != nil {
		b := *box
		rec.SpotBox = &b
	}
	m.open[plate] = rec
	return nil
}

func (m *Memory) ListSpots(ctx context.Context, status anpr.SpotStatus) ([]anpr.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]anpr.ParkingSpot, 0, len(m.spots))
	for _, s := range m.spots {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetSpot(ctx context.Context, id string) (*anpr.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) UpsertSpot(ctx context.Context, spot anpr.ParkingSpot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots[spot.ID] = spot
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func cloneRecord(rec anpr.OpenRecord) *anpr.OpenRecord {
	out := rec
	if rec.SpotBox != nil {
		b := *rec.SpotBox
		out.SpotBox = &b
	}
	return &out
}

// sortNewestFirst orders records by entry time descending, then plate text.
func sortNewestFirst(recs []anpr.OpenRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].EntryTime.Equal(recs[j].EntryTime) {
			return recs[i].EntryTime.After(recs[j].EntryTime)
		}
		return recs[i].PlateText < recs[j].PlateText
	})
}
