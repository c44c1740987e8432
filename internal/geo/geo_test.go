package geo

import (
	"context"
	"math"
	"testing"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// northOf returns the point km kilometres due north of c.
func northOf(c models.Coord, km float64) models.Coord {
	return models.Coord{Lat: c.Lat + km/(EarthRadiusKm*math.Pi/180), Lon: c.Lon}
}

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKmMeridian(t *testing.T) {
	origin := models.Coord{Lat: 19.0760, Lon: 72.8777}
	got := DistanceKm(origin, northOf(origin, 10))
	if math.Abs(got-10) > 1e-6 {
		t.Fatalf("expected 10km, got %f", got)
	}
}

func TestWithinRadiusBoundary(t *testing.T) {
	origin := models.Coord{Lat: 19.0760, Lon: 72.8777}
	in := northOf(origin, 4.9)
	out := northOf(origin, 5.1)
	cands := []models.Garage{
		{ID: "in", Location: &in},
		{ID: "out", Location: &out},
		{ID: "nowhere"},
	}
	got := WithinRadius(origin, cands, 5)
	if len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("expected only the 4.9km garage, got %+v", got)
	}
}

func TestWithinRadiusDeterministic(t *testing.T) {
	origin := models.Coord{Lat: 12.97, Lon: 77.59}
	a, b, c := northOf(origin, 1), northOf(origin, 3), northOf(origin, 2)
	cands := []models.Garage{{ID: "a", Location: &a}, {ID: "b", Location: &b}, {ID: "c", Location: &c}}
	first := WithinRadius(origin, cands, 5)
	second := WithinRadius(origin, cands, 5)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected all candidates, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].ID != cands[i].ID {
			t.Fatalf("order changed at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestIndexNearbySortedAndActiveOnly(t *testing.T) {
	origin := models.Coord{Lat: 19.0760, Lon: 72.8777}
	idx := NewIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, models.GarageLocation{GarageID: "far", UserID: "u-far", Loc: northOf(origin, 3), Active: true})
	_ = idx.Upsert(ctx, models.GarageLocation{GarageID: "near", UserID: "u-near", Loc: northOf(origin, 1), Active: true})
	_ = idx.Upsert(ctx, models.GarageLocation{GarageID: "closed", UserID: "u-closed", Loc: northOf(origin, 0.5), Active: false})
	_ = idx.Upsert(ctx, models.GarageLocation{GarageID: "out", UserID: "u-out", Loc: northOf(origin, 9), Active: true})

	got, err := idx.Nearby(ctx, origin, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].ID != "near" || got[1].ID != "far" {
		t.Fatalf("unexpected nearby result %+v", got)
	}
	if got[0].UserID != "u-near" {
		t.Fatalf("expected user id to be kept, got %q", got[0].UserID)
	}
	if idx.Len() != 4 {
		t.Fatalf("expected 4 garages indexed, got %d", idx.Len())
	}
}
