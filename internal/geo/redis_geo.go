package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
)

// RedisGeo implements Locator using Redis GEO commands. Garage metadata lives
// in a hash next to the geo set.
type RedisGeo struct {
	client redis.UniversalClient
	key    string
}

func NewRedisGeo(client redis.UniversalClient, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, loc models.GarageLocation) error {
	if !loc.Active {
		if err := r.client.ZRem(ctx, r.key, loc.GarageID).Err(); err != nil {
			return fmt.Errorf("remove garage %s: %w", loc.GarageID, err)
		}
	} else if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Loc.Lon, Latitude: loc.Loc.Lat, Name: loc.GarageID}).Err(); err != nil {
		return fmt.Errorf("geoadd garage %s: %w", loc.GarageID, err)
	}
	return r.client.HSet(ctx, MetaKey(loc.GarageID), MetaFields(loc)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, origin models.Coord, radiusKm float64) ([]models.Garage, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lon,
			Latitude:   origin.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	out := make([]models.Garage, 0, len(res))
	for _, g := range res {
		loc := models.Coord{Lat: g.Latitude, Lon: g.Longitude}
		gr := models.Garage{ID: g.Name, Location: &loc, Active: true}
		if m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result(); err == nil {
			gr.UserID = m["user_id"]
			gr.Name = m["name"]
			if v, ok := m["active"]; ok {
				gr.Active = v == "true"
			}
		}
		if gr.UserID == "" {
			gr.UserID = gr.ID
		}
		if gr.Active {
			out = append(out, gr)
		}
	}
	return out, nil
}

func MetaKey(id string) string { return "garage:meta:" + id }

// MetaFields is the hash written next to the geo member.
func MetaFields(loc models.GarageLocation) map[string]interface{} {
	return map[string]interface{}{
		"user_id": loc.UserID,
		"name":    loc.Name,
		"active":  strconv.FormatBool(loc.Active),
		"updated": time.Now().Format(time.RFC3339),
	}
}
