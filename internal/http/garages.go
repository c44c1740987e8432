package httpapi

import (
	"net/http"
	"time"

	"github.com/Pratikk2op/Mechiee-sub000/internal/ingest"
	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
)

// handleGarageLocation accepts a position update from a garage app. It is
// published for other instances when Kafka is configured and always applied
// to the local locator.
func (s *Server) handleGarageLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.GarageLocation
	if err := decodeJSON(r, &loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ingest.Validate(loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if loc.Updated.IsZero() {
		loc.Updated = time.Now().UTC()
	}
	var known models.Garage
	if s.garages != nil {
		known = s.knownGarage(r, loc.GarageID)
		// A garage keeps the owner it was registered with.
		if known.UserID != "" && loc.UserID != known.UserID {
			if loc.UserID != "" {
				s.logger.Warn("ignoring owner change in location update", "garage_id", loc.GarageID, "owner", known.UserID, "requested", loc.UserID)
			}
			loc.UserID = known.UserID
		}
	}
	if s.locations != nil {
		if err := s.locations.PublishGarageLocation(r.Context(), loc); err != nil {
			s.logger.Warn("publish garage location", "garage_id", loc.GarageID, "error", err)
		}
	}
	if err := s.locator.Upsert(r.Context(), loc); err != nil {
		s.writeError(w, r, err)
		return
	}
	if reg, ok := s.garages.(garageRegistrar); ok {
		reg.PutGarage(mergeGarage(known, loc))
	}
	observability.GarageLocationUpdates.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) knownGarage(r *http.Request, id string) models.Garage {
	g, err := s.garages.GetGarage(r.Context(), id)
	if err != nil || g == nil {
		return models.Garage{ID: id}
	}
	return *g
}

// mergeGarage applies a location update on top of what is already known.
// The owner is only ever set once; an empty name keeps the known one.
func mergeGarage(g models.Garage, loc models.GarageLocation) models.Garage {
	g.ID = loc.GarageID
	if g.UserID == "" {
		g.UserID = loc.UserID
	}
	if loc.Name != "" {
		g.Name = loc.Name
	}
	c := loc.Loc
	g.Location = &c
	g.Active = loc.Active
	return g
}
