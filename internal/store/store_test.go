package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// gatewayFactory opens a fresh, empty gateway for one test.
type gatewayFactory func(t *testing.T) Gateway

func backends(t *testing.T) map[string]gatewayFactory {
	t.Helper()
	b := map[string]gatewayFactory{
		"memory": func(t *testing.T) Gateway { return NewMemory() },
		"sqlite": func(t *testing.T) Gateway {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "anpr.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			return s
		},
	}
	if dsn := os.Getenv("ANPR_TEST_POSTGRES_DSN"); dsn != "" {
		b["postgres"] = func(t *testing.T) Gateway {
			p, err := OpenPostgres(context.Background(), dsn)
			if err != nil {
				t.Fatalf("OpenPostgres failed: %v", err)
			}
			p.db.Exec("DELETE FROM open_records")
			p.db.Exec("DELETE FROM parking_spots")
			return p
		}
	}
	return b
}

func forEachBackend(t *testing.T, fn func(t *testing.T, g Gateway)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g := open(t)
			defer g.Close()
			fn(t, g)
		})
	}
}

func at(sec int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC)
}

func TestOpenRecords_InsertGetDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()

		if _, err := g.GetOpen(ctx, "AB1234"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetOpen on empty store: got %v, want ErrNotFound", err)
		}

		rec := anpr.OpenRecord{PlateText: "AB1234", EntryTime: at(0), Snapshot: "abc"}
		if err := g.InsertOpen(ctx, rec); err != nil {
			t.Fatalf("InsertOpen failed: %v", err)
		}
		if err := g.InsertOpen(ctx, rec); !errors.Is(err, ErrDuplicate) {
			t.Errorf("second InsertOpen: got %v, want ErrDuplicate", err)
		}

		got, err := g.GetOpen(ctx, "AB1234")
		if err != nil {
			t.Fatalf("GetOpen failed: %v", err)
		}
		if got.Snapshot != "abc" || !got.EntryTime.Equal(at(0)) || got.SpotBox != nil {
			t.Errorf("GetOpen: got %+v", got)
		}

		deleted, err := g.DeleteOpen(ctx, "AB1234")
		if err != nil {
			t.Fatalf("DeleteOpen failed: %v", err)
		}
		if deleted.PlateText != "AB1234" {
			t.Errorf("DeleteOpen returned %q", deleted.PlateText)
		}
		if _, err := g.DeleteOpen(ctx, "AB1234"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteOpen: got %v, want ErrNotFound", err)
		}
	})
}

func TestListOpen_NewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()
		for i, plate := range []string{"AAA111", "BBB222", "CCC333"} {
			if err := g.InsertOpen(ctx, anpr.OpenRecord{PlateText: plate, EntryTime: at(i)}); err != nil {
				t.Fatalf("InsertOpen failed: %v", err)
			}
		}

		recs, err := g.ListOpen(ctx)
		if err != nil {
			t.Fatalf("ListOpen failed: %v", err)
		}
		want := []string{"CCC333", "BBB222", "AAA111"}
		if len(recs) != len(want) {
			t.Fatalf("ListOpen: got %d records, want %d", len(recs), len(want))
		}
		for i, plate := range want {
			if recs[i].PlateText != plate {
				t.Errorf("record %d: got %s, want %s", i, recs[i].PlateText, plate)
			}
		}
	})
}

func TestToggleOpen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()

		first, err := g.ToggleOpen(ctx, anpr.OpenRecord{PlateText: "XY999", EntryTime: at(0)})
		if err != nil {
			t.Fatalf("ToggleOpen failed: %v", err)
		}
		if !first.Entered {
			t.Error("first toggle should enter")
		}

		second, err := g.ToggleOpen(ctx, anpr.OpenRecord{PlateText: "XY999", EntryTime: at(30)})
		if err != nil {
			t.Fatalf("ToggleOpen failed: %v", err)
		}
		if second.Entered {
			t.Error("second toggle should exit")
		}
		if !second.Record.EntryTime.Equal(at(0)) {
			t.Errorf("exit should return the stored entry time, got %v", second.Record.EntryTime)
		}

		if _, err := g.GetOpen(ctx, "XY999"); !errors.Is(err, ErrNotFound) {
			t.Errorf("record should be gone after exit, got %v", err)
		}
	})
}

func TestToggleOpen_Concurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()
		const n = 10

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			entered int
			exited  int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := g.ToggleOpen(ctx, anpr.OpenRecord{PlateText: "RACE01", EntryTime: at(i)})
				if err != nil {
					t.Errorf("ToggleOpen failed: %v", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if res.Entered {
					entered++
				} else {
					exited++
				}
			}(i)
		}
		wg.Wait()

		// An even number of toggles leaves the plate closed with balanced
		// entries and exits.
		if entered != n/2 || exited != n/2 {
			t.Errorf("entered=%d exited=%d, want %d each", entered, exited, n/2)
		}
		if _, err := g.GetOpen(ctx, "RACE01"); !errors.Is(err, ErrNotFound) {
			t.Errorf("plate should be closed, got %v", err)
		}
	})
}

func TestSetAssignedSpot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()

		box := &anpr.Box{X1: 10, Y1: 20, X2: 60, Y2: 90}
		if err := g.SetAssignedSpot(ctx, "NOPE01", "spot-1", box); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetAssignedSpot on missing plate: got %v, want ErrNotFound", err)
		}

		if err := g.InsertOpen(ctx, anpr.OpenRecord{PlateText: "AB1234", EntryTime: at(0)}); err != nil {
			t.Fatalf("InsertOpen failed: %v", err)
		}
		if err := g.SetAssignedSpot(ctx, "AB1234", "spot-1", box); err != nil {
			t.Fatalf("SetAssignedSpot failed: %v", err)
		}
		got, err := g.GetOpen(ctx, "AB1234")
		if err != nil {
			t.Fatalf("GetOpen failed: %v", err)
		}
		if got.AssignedSpotID != "spot-1" || got.SpotBox == nil || *got.SpotBox != *box {
			t.Errorf("assigned spot: got %q %+v", got.AssignedSpotID, got.SpotBox)
		}

		if err := g.SetAssignedSpot(ctx, "AB1234", "", nil); err != nil {
			t.Fatalf("clearing spot failed: %v", err)
		}
		got, _ = g.GetOpen(ctx, "AB1234")
		if got.AssignedSpotID != "" || got.SpotBox != nil {
			t.Errorf("cleared spot: got %q %+v", got.AssignedSpotID, got.SpotBox)
		}
	})
}

func TestSpots(t *testing.T) {
	forEachBackend(t, func(t *testing.T, g Gateway) {
		ctx := context.Background()

		if _, err := g.GetSpot(ctx, "spot-0-0"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetSpot on empty store: got %v, want ErrNotFound", err)
		}

		spots := []anpr.ParkingSpot{
			{ID: "spot-b", Status: anpr.SpotOccupied, AssignedPlate: "AB1234", Box: anpr.Box{X2: 10, Y2: 10}, UpdatedAt: at(1)},
			{ID: "spot-a", Status: anpr.SpotFree, Box: anpr.Box{X2: 10, Y2: 10}, UpdatedAt: at(0)},
			{ID: "spot-c", Status: anpr.SpotFree, Box: anpr.Box{X2: 10, Y2: 10}, UpdatedAt: at(2)},
		}
		for _, s := range spots {
			if err := g.UpsertSpot(ctx, s); err != nil {
				t.Fatalf("UpsertSpot failed: %v", err)
			}
		}

		all, err := g.ListSpots(ctx, "")
		if err != nil {
			t.Fatalf("ListSpots failed: %v", err)
		}
		if len(all) != 3 || all[0].ID != "spot-a" || all[2].ID != "spot-c" {
			t.Errorf("ListSpots should be ordered by ID, got %+v", all)
		}

		free, err := g.ListSpots(ctx, anpr.SpotFree)
		if err != nil {
			t.Fatalf("ListSpots failed: %v", err)
		}
		if len(free) != 2 {
			t.Errorf("free spots: got %d, want 2", len(free))
		}

		// Upsert replaces in place.
		released := spots[0]
		released.Status = anpr.SpotFree
		released.AssignedPlate = ""
		released.UpdatedAt = at(5)
		if err := g.UpsertSpot(ctx, released); err != nil {
			t.Fatalf("UpsertSpot failed: %v", err)
		}
		got, err := g.GetSpot(ctx, "spot-b")
		if err != nil {
			t.Fatalf("GetSpot failed: %v", err)
		}
		if got.Status != anpr.SpotFree || got.AssignedPlate != "" || !got.UpdatedAt.Equal(at(5)) {
			t.Errorf("GetSpot after upsert: got %+v", got)
		}
	})
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	g, err := Open(ctx, Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := g.(*Memory); !ok {
		t.Errorf("memory driver returned %T", g)
	}

	g, err = Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	g.Close()

	if _, err := Open(ctx, Config{Driver: "sqlite"}); err == nil {
		t.Error("sqlite without a path should fail")
	}
	if _, err := Open(ctx, Config{Driver: "mongo"}); err == nil {
		t.Error("unknown driver should fail")
	}
}
