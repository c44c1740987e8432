package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// EarthRadiusKm is the sphere radius used for every distance in the service.
const EarthRadiusKm = 6371.0

// Located is anything with an optional position.
type Located interface {
	Position() (models.Coord, bool)
}

// Locator finds garages around a point. Implementations may over-return;
// callers run WithinRadius on the result.
type Locator interface {
	Nearby(ctx context.Context, origin models.Coord, radiusKm float64) ([]models.Garage, error)
	Upsert(ctx context.Context, loc models.GarageLocation) error
}

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Haversine distance in kilometres
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// WithinRadius keeps the candidates at most radiusKm from origin, in input
// order. Candidates without a position are dropped.
func WithinRadius[T Located](origin models.Coord, candidates []T, radiusKm float64) []T {
	out := make([]T, 0, len(candidates))
	for _, c := range candidates {
		pos, ok := c.Position()
		if !ok {
			continue
		}
		if DistanceKm(origin, pos) <= radiusKm {
			out = append(out, c)
		}
	}
	return out
}

// Index is an in-process garage catalog.
type Index struct {
	mu      sync.RWMutex
	garages map[string]models.Garage
	updated map[string]time.Time
}

func NewIndex(seed ...models.Garage) *Index {
	g := &Index{garages: make(map[string]models.Garage), updated: make(map[string]time.Time)}
	for _, s := range seed {
		g.garages[s.ID] = s
		g.updated[s.ID] = time.Now()
	}
	return g
}

func (g *Index) Upsert(_ context.Context, loc models.GarageLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := g.garages[loc.GarageID]
	cur.ID = loc.GarageID
	if loc.UserID != "" {
		cur.UserID = loc.UserID
	}
	if loc.Name != "" {
		cur.Name = loc.Name
	}
	c := loc.Loc
	cur.Location = &c
	cur.Active = loc.Active
	g.garages[loc.GarageID] = cur
	g.updated[loc.GarageID] = time.Now()
	return nil
}

// Nearby does a naive scan sorted by distance; fine for a city-sized catalog.
func (g *Index) Nearby(_ context.Context, origin models.Coord, radiusKm float64) ([]models.Garage, error) {
	g.mu.RLock()
	all := make([]models.Garage, 0, len(g.garages))
	for _, gr := range g.garages {
		if gr.Active {
			all = append(all, gr)
		}
	}
	g.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	out := WithinRadius(origin, all, radiusKm)
	sort.SliceStable(out, func(i, j int) bool {
		return DistanceKm(origin, *out[i].Location) < DistanceKm(origin, *out[j].Location)
	})
	return out, nil
}

// Len is the number of garages known to the index.
func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.garages)
}
