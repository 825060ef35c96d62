package mta

import (
	"fmt"
	"time"

	"github.com/transitfeeds/mta-arrivals/internal/feed"
	"github.com/transitfeeds/mta-arrivals/internal/models"
	"github.com/transitfeeds/mta-arrivals/internal/stations"
	"github.com/transitfeeds/mta-arrivals/internal/store"
)

// LocalClient implements the Client interface for local usage
// Manages in-memory data store and background feed updates
type LocalClient struct {
	store       *store.Store
	feedManager *feed.Manager
}

// NewLocal creates a new local MTA client
// Loads the station directory, then starts the background feed manager
func NewLocal(config Config) (*LocalClient, error) {
	dir, err := stations.Load(config.StopsFile)
	if err != nil {
		return nil, fmt.Errorf("load station directory: %w", err)
	}

	s := store.NewStore()
	// Station data is queryable before the first realtime refresh lands
	s.UpdateStations(dir.Stations())

	fm := feed.NewManager(config.APIKey, s, dir, config.UpdateInterval)
	fm.SetStopsFile(config.StopsFile)
	fm.SetStaticUpdateInterval(config.StaticUpdateInterval)
	if len(config.FeedURLs) > 0 {
		fm.SetFeedURLs(config.FeedURLs)
	}
	if config.ArrivalWindow > 0 {
		fm.SetArrivalWindow(config.ArrivalWindow)
	}
	fm.Start()

	return &LocalClient{
		store:       s,
		feedManager: fm,
	}, nil
}

// Close gracefully shuts down the local client
// Must be called to stop background goroutines and prevent leaks
func (c *LocalClient) Close() {
	c.feedManager.Stop()
}

func (c *LocalClient) GetStation(id string) (models.Station, error) {
	return c.store.GetStationByID(id)
}

func (c *LocalClient) GetStationsByLocation(lat, lon float64, limit int) ([]models.Station, error) {
	return c.store.GetStationsByLocation(lat, lon, limit), nil
}

func (c *LocalClient) GetStationsByRoute(route string) ([]models.Station, error) {
	return c.store.GetStationsByRoute(route)
}

func (c *LocalClient) GetStationsByIDs(ids []string) ([]models.Station, error) {
	return c.store.GetStationsByIDs(ids)
}

func (c *LocalClient) ListStations() ([]models.Station, error) {
	return c.directory().All(), nil
}

func (c *LocalClient) SearchStations(query string) ([]models.Station, error) {
	return c.directory().Search(query), nil
}

func (c *LocalClient) GetStopInfo(stopID string) (models.StopInfo, error) {
	return c.directory().StopInfo(stopID)
}

func (c *LocalClient) GetRoutes() ([]string, error) {
	return c.store.GetRoutes(), nil
}

func (c *LocalClient) GetServiceAlerts() ([]models.Alert, error) {
	return c.store.GetServiceAlerts(), nil
}

func (c *LocalClient) GetLastUpdate() time.Time {
	return c.store.GetLastUpdate()
}

func (c *LocalClient) GetLastStaticUpdate() time.Time {
	return c.feedManager.GetLastStaticUpdate()
}

func (c *LocalClient) directory() *stations.Directory {
	return c.feedManager.Directory()
}
