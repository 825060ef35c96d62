package feed

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/transitfeeds/mta-arrivals/internal/models"
	"github.com/transitfeeds/mta-arrivals/internal/stations"
	"github.com/transitfeeds/mta-arrivals/internal/store"
)

// FeedURLs for NYC Subway
var FeedURLs = []string{
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs",      // 1234567S
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-l",    // L
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-nqrw", // NRQW
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-bdfm", // BDFM
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-ace",  // ACE
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-jz",   // JZ
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-g",    // G
}

const (
	defaultStaticUpdateInterval = 6 * time.Hour
	defaultArrivalWindow        = 60 * time.Minute
	defaultMaxTrainsPerRoute    = 5
	fetchConcurrency            = 4
)

// Manager periodically fetches the GTFS-RT feeds, decodes them, and publishes
// per-station arrivals and alerts to the store. The Decoder does the byte-level
// work; the Manager owns fetching, retries, and the refresh schedule.
type Manager struct {
	apiKey               string
	store                *store.Store
	updateInterval       time.Duration
	staticUpdateInterval time.Duration
	arrivalWindow        time.Duration
	maxTrainsPerRoute    int
	httpClient           httpDoer
	decoder              Decoder
	feedURLs             []string
	stopsFile            string

	dir atomic.Pointer[stations.Directory]

	mu               sync.Mutex
	lastStaticUpdate time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a new feed manager. dir may be nil when the caller only
// exercises decode paths; Start requires a loaded directory.
func NewManager(apiKey string, store *store.Store, dir *stations.Directory, updateInterval time.Duration) *Manager {
	m := &Manager{
		apiKey:               apiKey,
		store:                store,
		updateInterval:       updateInterval,
		staticUpdateInterval: defaultStaticUpdateInterval,
		arrivalWindow:        defaultArrivalWindow,
		maxTrainsPerRoute:    defaultMaxTrainsPerRoute,
		httpClient:           newFetchClient(),
		feedURLs:             FeedURLs,
		stopCh:               make(chan struct{}),
	}
	if dir != nil {
		m.dir.Store(dir)
	}
	return m
}

// SetStaticUpdateInterval configures how often static GTFS data is reloaded.
// Zero disables the refresh.
func (m *Manager) SetStaticUpdateInterval(interval time.Duration) {
	m.staticUpdateInterval = interval
}

// SetStopsFile sets the stops.txt path used for static data refreshes.
func (m *Manager) SetStopsFile(path string) {
	m.stopsFile = path
}

// SetFeedURLs overrides the default NYC subway feed endpoints.
func (m *Manager) SetFeedURLs(urls []string) {
	m.feedURLs = urls
}

// SetArrivalWindow configures how far ahead arrivals are kept.
func (m *Manager) SetArrivalWindow(window time.Duration) {
	m.arrivalWindow = window
}

// Directory returns the current station directory, nil if none is loaded.
func (m *Manager) Directory() *stations.Directory {
	return m.dir.Load()
}

// GetLastStaticUpdate returns when static GTFS data was last loaded.
func (m *Manager) GetLastStaticUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastStaticUpdate.IsZero() {
		return m.lastStaticUpdate
	}
	if dir := m.dir.Load(); dir != nil {
		return dir.LoadedAt()
	}
	return time.Time{}
}

// Start begins the feed update loop
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.updateLoop()
}

// Stop stops the feed update loop
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) updateLoop() {
	defer m.wg.Done()

	// Initial update
	if err := m.update(); err != nil {
		log.Error().Err(err).Msg("Initial feed update failed")
	}

	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	var staticCh <-chan time.Time
	if m.staticUpdateInterval > 0 {
		staticTicker := time.NewTicker(m.staticUpdateInterval)
		defer staticTicker.Stop()
		staticCh = staticTicker.C
	}

	for {
		select {
		case <-ticker.C:
			if err := m.update(); err != nil {
				log.Error().Err(err).Msg("Feed update failed")
			}
		case <-staticCh:
			if err := m.updateStatic(); err != nil {
				log.Error().Err(err).Msg("Static data refresh failed")
			}
		case <-m.stopCh:
			return
		}
	}
}

// update fetches every configured feed, decodes the payloads, and publishes a
// fresh snapshot to the store. Individual feed failures are logged and skipped
// so one bad endpoint cannot blank out the others.
func (m *Manager) update() error {
	var (
		mu      sync.Mutex
		updates []models.TripUpdate
		alerts  []models.Alert
	)

	g := new(errgroup.Group)
	g.SetLimit(fetchConcurrency)

	for _, url := range m.feedURLs {
		url := url // per-iteration copy; required while go.mod targets go < 1.22
		g.Go(func() error {
			body, err := m.fetchFeed(url)
			if err != nil {
				log.Warn().Str("url", url).Err(err).Msg("Feed fetch failed")
				return nil
			}

			decoded, err := m.decoder.Decode(body)
			if err != nil {
				log.Warn().Str("url", url).Err(err).Msg("Feed decode failed")
				return nil
			}

			mu.Lock()
			updates = append(updates, decoded.Updates...)
			alerts = append(alerts, decoded.Alerts...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	dir := m.dir.Load()
	if dir == nil {
		log.Warn().Msg("No station directory loaded, skipping snapshot")
		return nil
	}

	snapshot := dir.Stations()
	for _, u := range updates {
		m.processTripUpdate(u, snapshot)
	}

	now := time.Now()
	for _, station := range snapshot {
		station.Trains.North = m.sortAndLimitTrains(station.Trains.North)
		station.Trains.South = m.sortAndLimitTrains(station.Trains.South)
		sort.Strings(station.Routes)
		station.LastUpdate = now
	}

	m.store.UpdateStations(snapshot)
	m.store.UpdateAlerts(m.normalizeAlerts(alerts))

	log.Debug().
		Int("trip_updates", len(updates)).
		Int("alerts", len(alerts)).
		Int("stations", len(snapshot)).
		Msg("Feed update complete")

	return nil
}

// updateStatic reloads the station directory from disk and swaps it in.
func (m *Manager) updateStatic() error {
	if m.stopsFile == "" {
		return nil
	}

	dir, err := stations.Load(m.stopsFile)
	if err != nil {
		return err
	}
	m.dir.Store(dir)

	m.mu.Lock()
	m.lastStaticUpdate = time.Now()
	m.mu.Unlock()

	log.Info().Int("stations", dir.Len()).Msg("Static station data reloaded")
	return nil
}

// processTripUpdate attaches a decoded trip's predicted arrivals to the
// matching stations. Platform stop IDs carry direction as an N/S suffix.
func (m *Manager) processTripUpdate(u models.TripUpdate, snapshot map[string]*models.Station) {
	route := m.extractRouteFromID(u.RouteID)
	if route == "" {
		return
	}

	now := time.Now()
	window := m.arrivalWindow
	if window <= 0 {
		window = defaultArrivalWindow
	}
	cutoff := now.Add(window)

	for _, su := range u.StopUpdates {
		ts := su.ArrivalTime
		if ts == 0 {
			ts = su.DepartureTime
		}
		if ts == 0 {
			continue
		}

		when := time.Unix(ts, 0)
		if when.Before(now) || when.After(cutoff) {
			continue
		}

		if len(su.StopID) < 2 {
			continue
		}
		direction := su.StopID[len(su.StopID)-1]
		baseID := su.StopID[:len(su.StopID)-1]

		station, ok := snapshot[baseID]
		if !ok {
			continue
		}

		train := models.Train{Route: route, Time: when}
		switch direction {
		case 'N':
			station.Trains.North = append(station.Trains.North, train)
		case 'S':
			station.Trains.South = append(station.Trains.South, train)
		default:
			continue
		}

		addRoute(station, route)
	}
}

// extractRouteFromID strips the trailing YYYYMMDD date MTA appends to some
// route and trip identifiers.
func (m *Manager) extractRouteFromID(id string) string {
	if len(id) > 8 && allDigits(id[len(id)-8:]) {
		return id[:len(id)-8]
	}
	return id
}

// sortAndLimitTrains dedupes arrivals, orders them by time, and caps each
// route's entries.
func (m *Manager) sortAndLimitTrains(trains []models.Train) []models.Train {
	if len(trains) == 0 {
		return trains
	}

	maxPerRoute := m.maxTrainsPerRoute
	if maxPerRoute <= 0 {
		maxPerRoute = defaultMaxTrainsPerRoute
	}

	sort.Slice(trains, func(i, j int) bool {
		return trains[i].Time.Before(trains[j].Time)
	})

	seen := make(map[models.Train]bool, len(trains))
	perRoute := make(map[string]int)
	result := trains[:0]
	for _, train := range trains {
		if seen[train] {
			continue
		}
		seen[train] = true
		if perRoute[train.Route] >= maxPerRoute {
			continue
		}
		perRoute[train.Route]++
		result = append(result, train)
	}

	return result
}

// normalizeAlerts maps raw feed route and stop identifiers onto the clean
// route names and station IDs the store serves.
func (m *Manager) normalizeAlerts(alerts []models.Alert) []models.Alert {
	result := make([]models.Alert, len(alerts))
	for i, alert := range alerts {
		routes := make([]string, 0, len(alert.Routes))
		seenRoutes := make(map[string]bool)
		for _, r := range alert.Routes {
			route := m.extractRouteFromID(r)
			if route == "" || seenRoutes[route] {
				continue
			}
			seenRoutes[route] = true
			routes = append(routes, route)
		}

		stationIDs := make([]string, 0, len(alert.Stations))
		seenStations := make(map[string]bool)
		for _, s := range alert.Stations {
			id := s
			if len(id) >= 2 {
				if last := id[len(id)-1]; last == 'N' || last == 'S' {
					id = id[:len(id)-1]
				}
			}
			if id == "" || seenStations[id] {
				continue
			}
			seenStations[id] = true
			stationIDs = append(stationIDs, id)
		}

		alert.Routes = routes
		alert.Stations = stationIDs
		result[i] = alert
	}
	return result
}

func addRoute(station *models.Station, route string) {
	for _, r := range station.Routes {
		if r == route {
			return
		}
	}
	station.Routes = append(station.Routes, route)
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
