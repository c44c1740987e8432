package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies in the WGS84 range.
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingBilled    BookingStatus = "billed"
)

// BookingDraft is what a customer submits; it becomes a pending Booking.
type BookingDraft struct {
	CustomerID         string   `json:"customerId"`
	Address            string   `json:"address"`
	BikeCompany        string   `json:"bikeCompany"`
	BikeModel          string   `json:"bikeModel"`
	RegistrationNumber string   `json:"registrationNumber"`
	Contact            string   `json:"contact"`
	Location           *Coord   `json:"location"`
	ServiceTypes       []string `json:"serviceTypes,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

type Booking struct {
	ID                 string        `json:"id"`
	CustomerID         string        `json:"customerId"`
	GarageID           string        `json:"garageId,omitempty"`
	MechanicID         string        `json:"mechanicId,omitempty"`
	Status             BookingStatus `json:"status"`
	Location           Coord         `json:"location"`
	Address            string        `json:"address"`
	BikeCompany        string        `json:"bikeCompany"`
	BikeModel          string        `json:"bikeModel"`
	RegistrationNumber string        `json:"registrationNumber"`
	Contact            string        `json:"contact"`
	ServiceTypes       []string      `json:"serviceTypes,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	RejectedBy         []string      `json:"rejectedBy"`
	Candidates         []string      `json:"candidates"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	AcceptedAt         *time.Time    `json:"acceptedAt,omitempty"`
}

// RejectedByGarage reports whether garageID is in the rejected set.
func (b *Booking) RejectedByGarage(garageID string) bool {
	for _, id := range b.RejectedBy {
		if id == garageID {
			return true
		}
	}
	return false
}

type Garage struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Location *Coord `json:"location,omitempty"`
	Active   bool   `json:"active"`
}

// Position satisfies geo.Located. Garages without coordinates are skipped by
// radius searches.
func (g Garage) Position() (Coord, bool) {
	if g.Location == nil {
		return Coord{}, false
	}
	return *g.Location, true
}

// GarageLocation is the payload garages push when they move or go on/offline.
type GarageLocation struct {
	GarageID string    `json:"garageId"`
	UserID   string    `json:"userId"`
	Name     string    `json:"name,omitempty"`
	Loc      Coord     `json:"loc"`
	Active   bool      `json:"active"`
	Updated  time.Time `json:"updated"`
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleGarage   Role = "garage"
	RoleMechanic Role = "mechanic"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleGarage, RoleMechanic, RoleAdmin:
		return true
	}
	return false
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	BookingID string    `json:"bookingId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
