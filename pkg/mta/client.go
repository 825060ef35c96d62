package mta

import (
	"time"

	"github.com/transitfeeds/mta-arrivals/internal/models"
)

// Client defines the interface for accessing MTA data
// Abstracts different data sources (local vs remote) behind common interface
type Client interface {
	GetStation(id string) (models.Station, error)
	GetStationsByLocation(lat, lon float64, limit int) ([]models.Station, error)
	GetStationsByRoute(route string) ([]models.Station, error)
	GetStationsByIDs(ids []string) ([]models.Station, error)

	ListStations() ([]models.Station, error)
	SearchStations(query string) ([]models.Station, error)
	GetStopInfo(stopID string) (models.StopInfo, error)

	GetRoutes() ([]string, error)

	GetServiceAlerts() ([]models.Alert, error)

	GetLastUpdate() time.Time
	GetLastStaticUpdate() time.Time
}
