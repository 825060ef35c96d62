package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/transitfeeds/mta-arrivals/internal/models"
	"github.com/transitfeeds/mta-arrivals/internal/stations"
	"github.com/transitfeeds/mta-arrivals/internal/store"
)

const testStops = `stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station
R16,Times Sq-42 St,40.755477,-73.987691,1,
R16N,Times Sq-42 St,40.755983,-73.986229,0,R16
R16S,Times Sq-42 St,40.75529,-73.987495,0,R16
L08N,6 Av,40.737335,-73.996786,0,
L08S,6 Av,40.737335,-73.996786,0,
`

func testDirectory(t *testing.T) *stations.Directory {
	t.Helper()
	d, err := stations.FromReader(strings.NewReader(testStops))
	if err != nil {
		t.Fatalf("Failed to build test directory: %v", err)
	}
	return d
}

func TestExtractRouteFromID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"A20241201", "A"},
		{"N20241201", "N"},
		{"123_20241201", "123_"},
		{"1", "1"},
		{"A", "A"},
		{"", ""},
		{"123", "123"},
	}

	m := &Manager{}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := m.extractRouteFromID(tt.input)
			if result != tt.expected {
				t.Errorf("extractRouteFromID(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSortAndLimitTrains(t *testing.T) {
	now := time.Now()
	m := &Manager{}

	trains := []models.Train{
		{Route: "N", Time: now.Add(5 * time.Minute)},
		{Route: "Q", Time: now.Add(2 * time.Minute)},
		{Route: "N", Time: now.Add(5 * time.Minute)}, // Duplicate
		{Route: "R", Time: now.Add(1 * time.Minute)},
		{Route: "W", Time: now.Add(10 * time.Minute)},
	}

	result := m.sortAndLimitTrains(trains)

	// Should have 4 unique trains (removed 1 duplicate)
	if len(result) != 4 {
		t.Errorf("Expected 4 trains after deduplication, got %d", len(result))
	}

	// Should be sorted by time (R, Q, N, W)
	expectedOrder := []string{"R", "Q", "N", "W"}
	for i, train := range result {
		if train.Route != expectedOrder[i] {
			t.Errorf("Train %d: expected route %s, got %s", i, expectedOrder[i], train.Route)
		}
	}

	// Test with empty slice
	empty := m.sortAndLimitTrains([]models.Train{})
	if len(empty) != 0 {
		t.Error("Empty slice should remain empty")
	}
}

func TestSortAndLimitTrainsPerRouteCap(t *testing.T) {
	now := time.Now()
	m := &Manager{maxTrainsPerRoute: 2}

	trains := []models.Train{
		{Route: "N", Time: now.Add(1 * time.Minute)},
		{Route: "N", Time: now.Add(2 * time.Minute)},
		{Route: "N", Time: now.Add(3 * time.Minute)},
		{Route: "Q", Time: now.Add(4 * time.Minute)},
	}

	result := m.sortAndLimitTrains(trains)

	if len(result) != 3 {
		t.Fatalf("Expected 3 trains after per-route cap, got %d", len(result))
	}
	if result[2].Route != "Q" {
		t.Errorf("Expected the third N train to be dropped, got %v", result)
	}
}

func TestProcessTripUpdate(t *testing.T) {
	m := &Manager{}

	stations := map[string]*models.Station{
		"R16": {
			ID:   "R16",
			Name: "Times Sq-42 St",
		},
	}

	arrivalTime := time.Now().Add(3 * time.Minute).Unix()
	update := models.TripUpdate{
		TripID:  "083750_N..N34R",
		RouteID: "N20241201",
		StopUpdates: []models.StopTimeUpdate{
			{StopID: "R16N", ArrivalTime: arrivalTime},
		},
	}

	m.processTripUpdate(update, stations)

	station := stations["R16"]
	if len(station.Trains.North) != 1 {
		t.Fatalf("Expected 1 northbound train, got %d", len(station.Trains.North))
	}
	if len(station.Trains.South) != 0 {
		t.Errorf("Expected 0 southbound trains, got %d", len(station.Trains.South))
	}

	train := station.Trains.North[0]
	if train.Route != "N" {
		t.Errorf("Expected route N, got %s", train.Route)
	}

	expectedTime := time.Unix(arrivalTime, 0)
	if !train.Time.Equal(expectedTime) {
		t.Errorf("Expected time %v, got %v", expectedTime, train.Time)
	}

	if len(station.Routes) != 1 || station.Routes[0] != "N" {
		t.Errorf("Expected station routes [N], got %v", station.Routes)
	}
}

func TestProcessTripUpdateSkipsStale(t *testing.T) {
	m := &Manager{}

	stations := map[string]*models.Station{
		"R16": {ID: "R16", Name: "Times Sq-42 St"},
	}

	update := models.TripUpdate{
		RouteID: "N",
		StopUpdates: []models.StopTimeUpdate{
			// Already departed
			{StopID: "R16N", ArrivalTime: time.Now().Add(-5 * time.Minute).Unix()},
			// Beyond the lookahead window
			{StopID: "R16S", ArrivalTime: time.Now().Add(3 * time.Hour).Unix()},
			// Unknown station
			{StopID: "X99N", ArrivalTime: time.Now().Add(3 * time.Minute).Unix()},
			// No timestamps at all
			{StopID: "R16N"},
		},
	}

	m.processTripUpdate(update, stations)

	station := stations["R16"]
	if len(station.Trains.North) != 0 || len(station.Trains.South) != 0 {
		t.Errorf("Expected no trains, got N=%d S=%d",
			len(station.Trains.North), len(station.Trains.South))
	}
}

func TestNormalizeAlerts(t *testing.T) {
	m := &Manager{}

	alerts := []models.Alert{
		{
			ID:       "alert-1",
			Header:   "Service Alert",
			Routes:   []string{"N20241201", "N20241201", "Q"},
			Stations: []string{"R16N", "R16S", "L08N"},
		},
	}

	result := m.normalizeAlerts(alerts)

	if len(result) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(result))
	}

	alert := result[0]
	if len(alert.Routes) != 2 || alert.Routes[0] != "N" || alert.Routes[1] != "Q" {
		t.Errorf("Expected routes [N Q], got %v", alert.Routes)
	}
	if len(alert.Stations) != 2 || alert.Stations[0] != "R16" || alert.Stations[1] != "L08" {
		t.Errorf("Expected stations [R16 L08], got %v", alert.Stations)
	}
}

func TestUpdateFromServedFeed(t *testing.T) {
	arrivalTime := time.Now().Add(3 * time.Minute).Unix()
	payload := buildFeed(t, []models.TripUpdate{
		{
			TripID:  "083750_N..N34R",
			RouteID: "N",
			StopUpdates: []models.StopTimeUpdate{
				{StopID: "R16N", ArrivalTime: arrivalTime, StopSequence: 1},
				{StopID: "L08S", ArrivalTime: arrivalTime + 120, StopSequence: 2},
			},
		},
	})

	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-api-key")
		w.Write(payload)
	}))
	defer srv.Close()

	s := store.NewStore()
	m := NewManager("test-key", s, testDirectory(t), time.Minute)
	m.SetFeedURLs([]string{srv.URL})

	if err := m.update(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotAPIKey != "test-key" {
		t.Errorf("Expected x-api-key header test-key, got %q", gotAPIKey)
	}

	station, err := s.GetStationByID("R16")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(station.Trains.North) != 1 {
		t.Fatalf("Expected 1 northbound train at R16, got %d", len(station.Trains.North))
	}
	if station.Trains.North[0].Route != "N" {
		t.Errorf("Expected route N, got %s", station.Trains.North[0].Route)
	}

	// The L08 station was synthesized from platform rows, trains still attach
	station, err = s.GetStationByID("L08")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(station.Trains.South) != 1 {
		t.Fatalf("Expected 1 southbound train at L08, got %d", len(station.Trains.South))
	}

	routes := s.GetRoutes()
	if len(routes) != 1 || routes[0] != "N" {
		t.Errorf("Expected routes [N], got %v", routes)
	}
}

func TestUpdateSkipsBadFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xff, 0xff})
	}))
	defer srv.Close()

	s := store.NewStore()
	m := NewManager("", s, testDirectory(t), time.Minute)
	m.SetFeedURLs([]string{srv.URL})

	if err := m.update(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Snapshot still publishes, just without trains
	station, err := s.GetStationByID("R16")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(station.Trains.North) != 0 {
		t.Errorf("Expected no trains, got %d", len(station.Trains.North))
	}
}

func TestStaticDataRefresh(t *testing.T) {
	s := store.NewStore()
	m := NewManager("test-key", s, nil, time.Minute)

	// Test that refresh can be disabled
	m.SetStaticUpdateInterval(0)
	if m.staticUpdateInterval != 0 {
		t.Error("SetStaticUpdateInterval(0) should disable refresh")
	}

	// Test that refresh interval can be configured
	m.SetStaticUpdateInterval(2 * time.Hour)
	if m.staticUpdateInterval != 2*time.Hour {
		t.Errorf("Expected 2 hours, got %v", m.staticUpdateInterval)
	}

	// Test default interval
	m2 := NewManager("test-key", s, nil, time.Minute)
	if m2.staticUpdateInterval != 6*time.Hour {
		t.Errorf("Expected default 6 hours, got %v", m2.staticUpdateInterval)
	}

	// Test GetLastStaticUpdate before any updates
	if !m.GetLastStaticUpdate().IsZero() {
		t.Error("GetLastStaticUpdate should return zero time before any updates")
	}

	// A directory supplied at construction counts as static data
	m3 := NewManager("test-key", s, testDirectory(t), time.Minute)
	if m3.GetLastStaticUpdate().IsZero() {
		t.Error("GetLastStaticUpdate should reflect the loaded directory")
	}
}
