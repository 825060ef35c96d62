package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/transitfeeds/mta-arrivals/internal/models"
	"github.com/transitfeeds/mta-arrivals/internal/stations"
	"github.com/transitfeeds/mta-arrivals/pkg/mta"
)

// Handler handles HTTP requests
type Handler struct {
	client mta.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(client mta.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/stations", h.handleStations).Methods("GET")
	r.HandleFunc("/stations/search", h.handleStationSearch).Methods("GET")
	r.HandleFunc("/stations/{id}", h.handleStation).Methods("GET")
	r.HandleFunc("/stations/{id}/arrivals", h.handleStationArrivals).Methods("GET")
	r.HandleFunc("/stops/{id}", h.handleStopInfo).Methods("GET")
	r.HandleFunc("/by-location", h.handleByLocation).Methods("GET")
	r.HandleFunc("/by-route/{route}", h.handleByRoute).Methods("GET")
	r.HandleFunc("/by-id/{ids}", h.handleByID).Methods("GET")
	r.HandleFunc("/routes", h.handleRoutes).Methods("GET")
	r.HandleFunc("/alerts", h.handleAlerts).Methods("GET")
}

// Response wraps API responses
type Response struct {
	Data    interface{} `json:"data"`
	Updated string      `json:"updated,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ArrivalsResponse lists upcoming trains at one station
type ArrivalsResponse struct {
	StationID   string         `json:"station_id"`
	StationName string         `json:"station_name"`
	N           []models.Train `json:"N"`
	S           []models.Train `json:"S"`
	Total       int            `json:"total"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"title":  "mta-arrivals",
		"readme": "Station directory and real-time arrivals for the NYC subway",
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	stationList, err := h.client.ListStations()
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeStationsResponse(w, stationList)
}

func (h *Handler) handleStationSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		h.writeError(w, "Query must be at least 2 characters", http.StatusBadRequest)
		return
	}

	matches, err := h.client.SearchStations(query)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeStationsResponse(w, matches)
}

func (h *Handler) handleStation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	station, err := h.client.GetStation(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	h.writeStationsResponse(w, []models.Station{station})
}

func (h *Handler) handleStationArrivals(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := 3
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	station, err := h.client.GetStation(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	total := len(station.Trains.North) + len(station.Trains.South)
	response := ArrivalsResponse{
		StationID:   station.ID,
		StationName: station.Name,
		N:           limitTrains(station.Trains.North, limit),
		S:           limitTrains(station.Trains.South, limit),
		Total:       total,
	}

	h.writeJSON(w, Response{
		Data:    response,
		Updated: station.LastUpdate.Format(time.RFC3339),
	})
}

func (h *Handler) handleStopInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := h.client.GetStopInfo(id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	h.writeJSON(w, Response{Data: info})
}

func (h *Handler) handleByLocation(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	if latStr == "" || lonStr == "" {
		h.writeError(w, "Missing lat/lon parameter", http.StatusBadRequest)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lat parameter", http.StatusBadRequest)
		return
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lon parameter", http.StatusBadRequest)
		return
	}

	stations, err := h.client.GetStationsByLocation(lat, lon, 5)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleByRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]

	stations, err := h.client.GetStationsByRoute(route)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleByID(w http.ResponseWriter, r *http.Request) {
	idsStr := mux.Vars(r)["ids"]
	ids := strings.Split(idsStr, ",")

	stations, err := h.client.GetStationsByIDs(ids)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.client.GetRoutes()
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := Response{
		Data:    routes,
		Updated: h.client.GetLastUpdate().Format(time.RFC3339),
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.client.GetServiceAlerts()
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := Response{
		Data:    alerts,
		Updated: h.client.GetLastUpdate().Format(time.RFC3339),
	}
	h.writeJSON(w, response)
}

func (h *Handler) writeStationsResponse(w http.ResponseWriter, stations []models.Station) {
	// Convert stations to response format
	data := make([]models.StationResponse, len(stations))
	var lastUpdate time.Time

	for i, station := range stations {
		data[i] = station.ConvertToResponse()
		if station.LastUpdate.After(lastUpdate) {
			lastUpdate = station.LastUpdate
		}
	}

	response := Response{
		Data: data,
	}
	if !lastUpdate.IsZero() {
		response.Updated = lastUpdate.Format(time.RFC3339)
	}

	h.writeJSON(w, response)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, stations.ErrStationNotFound) {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeError(w, err.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.writeError(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func limitTrains(trains []models.Train, limit int) []models.Train {
	if len(trains) <= limit {
		return trains
	}
	return trains[:limit]
}
