package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// SQLite is a Gateway backed by a local SQLite file.
//
// Timestamps are stored as Unix nanoseconds in UTC.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store requires a database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps toggles serialized without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS open_records (
			plate_text TEXT PRIMARY KEY,
			entry_time INTEGER NOT NULL,
			snapshot TEXT NOT NULL DEFAULT '',
			spot_id TEXT NOT NULL DEFAULT '',
			spot_x1 INTEGER,
			spot_y1 INTEGER,
			spot_x2 INTEGER,
			spot_y2 INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_open_records_entry ON open_records(entry_time DESC)`,
		`CREATE TABLE IF NOT EXISTS parking_spots (
			spot_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			assigned_plate TEXT NOT NULL DEFAULT '',
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_parking_spots_status ON parking_spots(status)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const openColumns = `plate_text, entry_time, snapshot, spot_id, spot_x1, spot_y1, spot_x2, spot_y2`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpen(row rowScanner) (*anpr.OpenRecord, error) {
	var (
		rec            anpr.OpenRecord
		entry          int64
		x1, y1, x2, y2 sql.NullInt64
	)
	if err := row.Scan(&rec.PlateText, &entry, &rec.Snapshot, &rec.AssignedSpotID, &x1, &y1, &x2, &y2); err != nil {
		return nil, err
	}
	rec.EntryTime = time.Unix(0, entry).UTC()
	if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
		rec.SpotBox = &anpr.Box{X1: int(x1.Int64), Y1: int(y1.Int64), X2: int(x2.Int64), Y2: int(y2.Int64)}
	}
	return &rec, nil
}

// boxArgs flattens an optional box into four nullable columns.
func boxArgs(b *anpr.Box) []any {
	if b == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{b.X1, b.Y1, b.X2, b.Y2}
}

func (s *SQLite) GetOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+openColumns+` FROM open_records WHERE plate_text = ?`, plate)
	rec, err := scanOpen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open record: %w", err)
	}
	return rec, nil
}

func (s *SQLite) InsertOpen(ctx context.Context, rec anpr.OpenRecord) error {
	return insertOpen(ctx, s.db, rec)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOpen(ctx context.Context, db execer, rec anpr.OpenRecord) error {
	args := append([]any{rec.PlateText, rec.EntryTime.UTC().UnixNano(), rec.Snapshot, rec.AssignedSpotID}, boxArgs(rec.SpotBox)...)
	res, err := db.ExecContext(ctx,
		`INSERT INTO open_records (`+openColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plate_text) DO NOTHING`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert open record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLite) DeleteOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := deleteOpen(ctx, tx, plate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return rec, nil
}

func deleteOpen(ctx context.Context, tx *sql.Tx, plate string) (*anpr.OpenRecord, error) {
	rec, err := scanOpen(tx.QueryRowContext(ctx, `SELECT `+openColumns+` FROM open_records WHERE plate_text = ?`, plate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM open_records WHERE plate_text = ?`, plate); err != nil {
		return nil, fmt.Errorf("failed to delete open record: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListOpen(ctx context.Context) ([]anpr.OpenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+openColumns+` FROM open_records ORDER BY entry_time DESC, plate_text ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open records: %w", err)
	}
	defer rows.Close()

	records := make([]anpr.OpenRecord, 0)
	for rows.Next() {
		rec, err := scanOpen(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLite) ToggleOpen(ctx context.Context, rec anpr.OpenRecord) (Toggle, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Toggle{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var result Toggle
	existing, err := deleteOpen(ctx, tx, rec.PlateText)
	switch {
	case err == nil:
		result = Toggle{Entered: false, Record: *existing}
	case errors.Is(err, ErrNotFound):
		if err := insertOpen(ctx, tx, rec); err != nil {
			return Toggle{}, err
		}
		result = Toggle{Entered: true, Record: rec}
	default:
		return Toggle{}, err
	}

	if err := tx.Commit(); err != nil {
		return Toggle{}, fmt.Errorf("failed to commit toggle: %w", err)
	}
	return result, nil
}

func (s *SQLite) SetAssignedSpot(ctx context.Context, plate, spotID string, box *anpr.Box) error {
	if spotID == "" {
		box = nil
	}
	args := append([]any{spotID}, boxArgs(box)...)
	args = append(args, plate)
	res, err := s.db.ExecContext(ctx,
		`UPDATE open_records SET spot_id = ?, spot_x1 = ?, spot_y1 = ?, spot_x2 = ?, spot_y2 = ?
		WHERE plate_text = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to set assigned spot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const spotColumns = `spot_id, status, assigned_plate, x1, y1, x2, y2, updated_at`

func scanSpot(row rowScanner) (*anpr.ParkingSpot, error) {
	var (
		spot    anpr.ParkingSpot
		status  string
		updated int64
	)
	if err := row.Scan(&spot.ID, &status, &spot.AssignedPlate, &spot.Box.X1, &spot.Box.Y1, &spot.Box.X2, &spot.Box.Y2, &updated); err != nil {
		return nil, err
	}
	spot.Status = anpr.SpotStatus(status)
	spot.UpdatedAt = time.Unix(0, updated).UTC()
	return &spot, nil
}

func (s *SQLite) ListSpots(ctx context.Context, status anpr.SpotStatus) ([]anpr.ParkingSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM parking_spots`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY spot_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	defer rows.Close()

	spots := make([]anpr.ParkingSpot, 0)
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		spots = append(spots, *spot)
	}
	return spots, rows.Err()
}

func (s *SQLite) GetSpot(ctx context.Context, id string) (*anpr.ParkingSpot, error) {
	spot, err := scanSpot(s.db.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM parking_spots WHERE spot_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spot: %w", err)
	}
	return spot, nil
}

func (s *SQLite) UpsertSpot(ctx context.Context, spot anpr.ParkingSpot) error {
	query := `INSERT INTO parking_spots (` + spotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(spot_id) DO UPDATE SET
			status = excluded.status,
			assigned_plate = excluded.assigned_plate,
			x1 = excluded.x1,
			y1 = excluded.y1,
			x2 = excluded.x2,
			y2 = excluded.y2,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		spot.ID, strings.ToLower(string(spot.Status)), spot.AssignedPlate,
		spot.Box.X1, spot.Box.Y1, spot.Box.X2, spot.Box.Y2,
		spot.UpdatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert spot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
