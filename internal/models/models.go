package models

import (
	"time"
)

// Location represents a geographic coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Train represents a train arrival
type Train struct {
	Route string    `json:"route"`
	Time  time.Time `json:"time"`
}

// TrainsByDirection groups trains by direction
type TrainsByDirection struct {
	North []Train `json:"N"`
	South []Train `json:"S"`
}

// Station represents a subway station with real-time data
type Station struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Location   Location            `json:"location"`
	Routes     []string            `json:"routes"`
	Trains     TrainsByDirection   `json:"-"`
	Stops      map[string]Location `json:"stops"`
	LastUpdate time.Time           `json:"last_update"`
}

// StopInfo describes a single platform stop within a station.
// Direction comes from the MTA stop ID suffix (N/S); empty when the
// suffix is absent.
type StopInfo struct {
	StopID    string   `json:"stop_id"`
	StationID string   `json:"station_id"`
	Name      string   `json:"station_name"`
	Direction string   `json:"direction,omitempty"`
	Platforms []string `json:"all_platforms"`
}

// TripUpdate is a single decoded trip entity from a GTFS-RT feed.
// Stop updates keep the order they appear in on the wire.
type TripUpdate struct {
	TripID      string           `json:"trip_id"`
	RouteID     string           `json:"route_id"`
	DirectionID *uint32          `json:"direction_id,omitempty"`
	StopUpdates []StopTimeUpdate `json:"stop_updates"`
}

// StopTimeUpdate is one predicted stop event within a trip update.
// Timestamps are unix seconds; zero means the feed did not set the field.
type StopTimeUpdate struct {
	StopID        string `json:"stop_id"`
	ArrivalTime   int64  `json:"arrival_time,omitempty"`
	DepartureTime int64  `json:"departure_time,omitempty"`
	Delay         int32  `json:"delay,omitempty"`
	StopSequence  uint32 `json:"stop_sequence,omitempty"`
}

// StationResponse is the API response format for a station
type StationResponse struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Location   [2]float64            `json:"location"`
	Routes     []string              `json:"routes"`
	N          []Train               `json:"N"`
	S          []Train               `json:"S"`
	Stops      map[string][2]float64 `json:"stops"`
	LastUpdate time.Time             `json:"last_update"`
}

// Alert represents a service alert
type Alert struct {
	ID            string       `json:"id"`
	Header        string       `json:"header"`
	Description   string       `json:"description"`
	Routes        []string     `json:"routes"`
	Stations      []string     `json:"stations"`
	ActivePeriods []TimePeriod `json:"active_periods"`
}

// TimePeriod represents a time range
type TimePeriod struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ConvertToResponse converts a Station to StationResponse format
func (s *Station) ConvertToResponse() StationResponse {
	stops := make(map[string][2]float64)
	for id, loc := range s.Stops {
		stops[id] = [2]float64{loc.Lat, loc.Lon}
	}

	return StationResponse{
		ID:         s.ID,
		Name:       s.Name,
		Location:   [2]float64{s.Location.Lat, s.Location.Lon},
		Routes:     s.Routes,
		N:          s.Trains.North,
		S:          s.Trains.South,
		Stops:      stops,
		LastUpdate: s.LastUpdate,
	}
}
