// Package store persists open plate records and the parking spot table.
//
// Gateway is implemented three ways: an in-memory store for tests and
// ephemeral runs, SQLite (the default, a single local file) and PostgreSQL
// through gorm. All three give the same guarantees; in particular
// ToggleOpen is atomic, so concurrent observations of one plate can never
// both enter or both exit.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Toggle is the outcome of ToggleOpen.
type Toggle struct {
	// Entered is true when a new record was inserted and false when an
	// existing record was removed.
	Entered bool
	// Record is the inserted record on entry, or the removed one on exit.
	Record anpr.OpenRecord
}

// Gateway is the persistence boundary used by the tracker and allocator.
type Gateway interface {
	// GetOpen returns the open record for plate or ErrNotFound.
	GetOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error)
	// InsertOpen adds a record; ErrDuplicate if the plate is already open.
	InsertOpen(ctx context.Context, rec anpr.OpenRecord) error
	// DeleteOpen removes and returns the record for plate or ErrNotFound.
	DeleteOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error)
	// ListOpen returns all open records, newest entry first.
	ListOpen(ctx context.Context) ([]anpr.OpenRecord, error)
	// ToggleOpen removes the record for rec.PlateText if one exists,
	// otherwise inserts rec, as one atomic step.
	ToggleOpen(ctx context.Context, rec anpr.OpenRecord) (Toggle, error)
	// SetAssignedSpot records the spot given to an open plate. An empty
	// spotID clears it. ErrNotFound if the plate is not open.
	SetAssignedSpot(ctx context.Context, plate, spotID string, box *anpr.Box) error

	// ListSpots returns spots ordered by ID; an empty status lists all.
	ListSpots(ctx context.Context, status anpr.SpotStatus) ([]anpr.ParkingSpot, error)
	// GetSpot returns a spot or ErrNotFound.
	GetSpot(ctx context.Context, id string) (*anpr.ParkingSpot, error)
	// UpsertSpot inserts or replaces a spot by ID.
	UpsertSpot(ctx context.Context, spot anpr.ParkingSpot) error

	Close() error
}

// Config selects and locates the backing store.
type Config struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `mapstructure:"dsn"`
}

// Open creates the configured gateway and prepares its schema.
func Open(ctx context.Context, cfg Config) (Gateway, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
