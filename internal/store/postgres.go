package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// toggleAttempts bounds retries when a concurrent toggle wins the insert race.
const toggleAttempts = 3

type openRecordRow struct {
	PlateText string    `gorm:"primaryKey"`
	EntryTime time.Time `gorm:"not null;index:idx_open_records_entry,sort:desc"`
	Snapshot  string    `gorm:"not null;default:''"`
	SpotID    string    `gorm:"not null;default:''"`
	SpotX1    *int `gorm:"column:spot_x1"`
	SpotY1    *int `gorm:"column:spot_y1"`
	SpotX2    *int `gorm:"column:spot_x2"`
	SpotY2    *int `gorm:"column:spot_y2"`
}

func (openRecordRow) TableName() string { return "open_records" }

func (r openRecordRow) record() anpr.OpenRecord {
	rec := anpr.OpenRecord{
		PlateText:      r.PlateText,
		EntryTime:      r.EntryTime.UTC(),
		Snapshot:       r.Snapshot,
		AssignedSpotID: r.SpotID,
	}
	if r.SpotX1 != nil && r.SpotY1 != nil && r.SpotX2 != nil && r.SpotY2 != nil {
		rec.SpotBox = &anpr.Box{X1: *r.SpotX1, Y1: *r.SpotY1, X2: *r.SpotX2, Y2: *r.SpotY2}
	}
	return rec
}

func openRowFrom(rec anpr.OpenRecord) openRecordRow {
	row := openRecordRow{
		PlateText: rec.PlateText,
		EntryTime: rec.EntryTime.UTC(),
		Snapshot:  rec.Snapshot,
		SpotID:    rec.AssignedSpotID,
	}
	if b := rec.SpotBox; b != nil {
		row.SpotX1, row.SpotY1, row.SpotX2, row.SpotY2 = &b.X1, &b.Y1, &b.X2, &b.Y2
	}
	return row
}

type parkingSpotRow struct {
	SpotID        string    `gorm:"primaryKey"`
	Status        string    `gorm:"not null;index"`
	AssignedPlate string    `gorm:"not null;default:''"`
	X1            int       `gorm:"column:x1;not null"`
	Y1            int       `gorm:"column:y1;not null"`
	X2            int       `gorm:"column:x2;not null"`
	Y2            int       `gorm:"column:y2;not null"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (parkingSpotRow) TableName() string { return "parking_spots" }

func (r parkingSpotRow) spot() anpr.ParkingSpot {
	return anpr.ParkingSpot{
		ID:            r.SpotID,
		Status:        anpr.SpotStatus(r.Status),
		AssignedPlate: r.AssignedPlate,
		Box:           anpr.Box{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2},
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// Postgres is a Gateway backed by PostgreSQL through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&openRecordRow{}, &parkingSpotRow{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) GetOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	var row openRecordRow
	err := p.db.WithContext(ctx).Where("plate_text = ?", plate).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open record: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

func (p *Postgres) InsertOpen(ctx context.Context, rec anpr.OpenRecord) error {
	return insertOpenRow(p.db.WithContext(ctx), rec)
}

func insertOpenRow(db *gorm.DB, rec anpr.OpenRecord) error {
	row := openRowFrom(rec)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("failed to insert open record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *Postgres) DeleteOpen(ctx context.Context, plate string) (*anpr.OpenRecord, error) {
	return deleteOpenRow(p.db.WithContext(ctx), plate)
}

func deleteOpenRow(db *gorm.DB, plate string) (*anpr.OpenRecord, error) {
	var rows []openRecordRow
	res := db.Clauses(clause.Returning{}).Where("plate_text = ?", plate).Delete(&rows)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete open record: %w", res.Error)
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		return nil, ErrNotFound
	}
	rec := rows[0].record()
	return &rec, nil
}

func (p *Postgres) ListOpen(ctx context.Context) ([]anpr.OpenRecord, error) {
	var rows []openRecordRow
	if err := p.db.WithContext(ctx).Order("entry_time DESC").Order("plate_text ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list open records: %w", err)
	}
	records := make([]anpr.OpenRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// ToggleOpen deletes the plate's record if present, otherwise inserts rec.
// Losing an insert race to a concurrent toggle retries, which then deletes
// the winner's record.
func (p *Postgres) ToggleOpen(ctx context.Context, rec anpr.OpenRecord) (Toggle, error) {
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		var result Toggle
		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := deleteOpenRow(tx, rec.PlateText)
			if err == nil {
				result = Toggle{Entered: false, Record: *existing}
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := insertOpenRow(tx, rec); err != nil {
				return err
			}
			result = Toggle{Entered: true, Record: rec}
			return nil
		})
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return Toggle{}, err
		}
		return result, nil
	}
	return Toggle{}, fmt.Errorf("toggle of %s did not settle: %w", rec.PlateText, ErrDuplicate)
}

func (p *Postgres) SetAssignedSpot(ctx context.Context, plate, spotID string, box *anpr.Box) error {
	updates := map[string]any{
		"spot_id": spotID,
		"spot_x1": nil,
		"spot_y1": nil,
		"spot_x2": nil,
		"spot_y2": nil,
	}
	if spotID != "" && box != nil {
		updates["spot_x1"] = box.X1
		updates["spot_y1"] = box.Y1
		updates["spot_x2"] = box.X2
		updates["spot_y2"] = box.Y2
	}
	res := p.db.WithContext(ctx).Model(&openRecordRow{}).Where("plate_text = ?", plate).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to set assigned spot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListSpots(ctx context.Context, status anpr.SpotStatus) ([]anpr.ParkingSpot, error) {
	q := p.db.WithContext(ctx).Order("spot_id ASC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []parkingSpotRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	spots := make([]anpr.ParkingSpot, 0, len(rows))
	for _, r := range rows {
		spots = append(spots, r.spot())
	}
	return spots, nil
}

func (p *Postgres) GetSpot(ctx context.Context, id string) (*anpr.ParkingSpot, error) {
	var row parkingSpotRow
	err := p.db.WithContext(ctx).Where("spot_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spot: %w", err)
	}
	spot := row.spot()
	return &spot, nil
}

func (p *Postgres) UpsertSpot(ctx context.Context, spot anpr.ParkingSpot) error {
	row := parkingSpotRow{
		SpotID:        spot.ID,
		Status:        string(spot.Status),
		AssignedPlate: spot.AssignedPlate,
		X1:            spot.Box.X1,
		Y1:            spot.Box.Y1,
		X2:            spot.Box.X2,
		Y2:            spot.Box.Y2,
		UpdatedAt:     spot.UpdatedAt.UTC(),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "spot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "assigned_plate", "x1", "y1", "x2", "y2", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert spot: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
