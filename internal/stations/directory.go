package stations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/transitfeeds/mta-arrivals/internal/models"
)

// ErrStationNotFound is returned when a station or stop ID is not in the directory.
var ErrStationNotFound = errors.New("station not found")

// stop mirrors one row of a GTFS stops.txt file
type stop struct {
	ID           string  `csv:"stop_id"`
	Name         string  `csv:"stop_name"`
	Lat          float64 `csv:"stop_lat"`
	Lon          float64 `csv:"stop_lon"`
	LocationType string  `csv:"location_type"`
	Parent       string  `csv:"parent_station"`
}

// Directory is an immutable station lookup table built from static GTFS data.
// All methods are pure reads, so a single Directory can be shared across
// goroutines without locking.
type Directory struct {
	stations      map[string]*models.Station
	stopToStation map[string]string
	sorted        []*models.Station
	loadedAt      time.Time
}

// Load builds a Directory from a GTFS stops.txt file on disk.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stops file: %w", err)
	}
	defer f.Close()

	d, err := FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// FromReader builds a Directory from stops.txt CSV content.
// Platform stops (rows with a parent_station, or an N/S suffix on the ID)
// roll up under their parent station.
func FromReader(r io.Reader) (*Directory, error) {
	// Tolerate rows with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		cr := csv.NewReader(in)
		cr.FieldsPerRecord = -1
		return cr
	})

	var rows []stop
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("no stops in file")
	}

	d := &Directory{
		stations:      make(map[string]*models.Station),
		stopToStation: make(map[string]string),
		loadedAt:      time.Now(),
	}

	// First pass: parent stations. MTA marks these location_type=1 with no
	// parent; feeds without explicit parents fall through to the second pass.
	for _, row := range rows {
		if row.Parent != "" {
			continue
		}
		if row.LocationType != "1" && isPlatformID(row.ID) {
			continue
		}
		if _, dup := d.stations[row.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", row.ID)
		}
		d.stations[row.ID] = &models.Station{
			ID:       row.ID,
			Name:     strings.TrimSpace(row.Name),
			Location: models.Location{Lat: row.Lat, Lon: row.Lon},
			Stops:    make(map[string]models.Location),
		}
	}

	// Second pass: platform stops attach to their parent. When the parent row
	// is missing we synthesize a station from the base ID.
	for _, row := range rows {
		parent := row.Parent
		if parent == "" {
			if row.LocationType == "1" || !isPlatformID(row.ID) {
				continue
			}
			parent = row.ID[:len(row.ID)-1]
		}
		st, ok := d.stations[parent]
		if !ok {
			st = &models.Station{
				ID:       parent,
				Name:     strings.TrimSpace(row.Name),
				Location: models.Location{Lat: row.Lat, Lon: row.Lon},
				Stops:    make(map[string]models.Location),
			}
			d.stations[parent] = st
		}
		if _, dup := d.stopToStation[row.ID]; dup {
			return nil, fmt.Errorf("duplicate stop id %q", row.ID)
		}
		st.Stops[row.ID] = models.Location{Lat: row.Lat, Lon: row.Lon}
		d.stopToStation[row.ID] = parent
	}

	d.sorted = make([]*models.Station, 0, len(d.stations))
	for _, st := range d.stations {
		d.sorted = append(d.sorted, st)
	}
	sort.Slice(d.sorted, func(i, j int) bool {
		return d.sorted[i].Name < d.sorted[j].Name
	})

	return d, nil
}

// Lookup returns the station for a station ID or a platform stop ID.
// Fails with ErrStationNotFound for unknown identifiers.
func (d *Directory) Lookup(id string) (models.Station, error) {
	if st, ok := d.stations[id]; ok {
		return *st, nil
	}
	if parent, ok := d.stopToStation[id]; ok {
		return *d.stations[parent], nil
	}
	return models.Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
}

// StopInfo resolves a platform stop ID into its station, direction, and
// sibling platforms.
func (d *Directory) StopInfo(stopID string) (models.StopInfo, error) {
	st, err := d.Lookup(stopID)
	if err != nil {
		return models.StopInfo{}, err
	}

	platforms := make([]string, 0, len(st.Stops))
	for id := range st.Stops {
		platforms = append(platforms, id)
	}
	sort.Strings(platforms)

	return models.StopInfo{
		StopID:    stopID,
		StationID: st.ID,
		Name:      st.Name,
		Direction: directionFromStopID(stopID),
		Platforms: platforms,
	}, nil
}

// Search returns stations whose display name contains the query,
// case-insensitively, sorted by name.
func (d *Directory) Search(query string) []models.Station {
	query = strings.ToLower(query)
	var matches []models.Station
	for _, st := range d.sorted {
		if strings.Contains(strings.ToLower(st.Name), query) {
			matches = append(matches, *st)
		}
	}
	return matches
}

// All returns every station sorted by name.
func (d *Directory) All() []models.Station {
	result := make([]models.Station, len(d.sorted))
	for i, st := range d.sorted {
		result[i] = *st
	}
	return result
}

// Len returns the number of stations in the directory.
func (d *Directory) Len() int {
	return len(d.stations)
}

// LoadedAt returns when the directory was built.
func (d *Directory) LoadedAt() time.Time {
	return d.loadedAt
}

// Stations returns a fresh mutable snapshot of every station, keyed by ID.
// Callers own the copies and may attach real-time data to them.
func (d *Directory) Stations() map[string]*models.Station {
	snapshot := make(map[string]*models.Station, len(d.stations))
	for id, st := range d.stations {
		c := *st
		c.Routes = append([]string(nil), st.Routes...)
		c.Stops = make(map[string]models.Location, len(st.Stops))
		for sid, loc := range st.Stops {
			c.Stops[sid] = loc
		}
		c.Trains = models.TrainsByDirection{}
		snapshot[id] = &c
	}
	return snapshot
}

// isPlatformID reports whether an MTA stop ID names a platform ("R16N").
func isPlatformID(id string) bool {
	if len(id) < 2 {
		return false
	}
	last := id[len(id)-1]
	return last == 'N' || last == 'S'
}

func directionFromStopID(stopID string) string {
	switch {
	case strings.HasSuffix(stopID, "N"):
		return "Northbound"
	case strings.HasSuffix(stopID, "S"):
		return "Southbound"
	}
	return ""
}
