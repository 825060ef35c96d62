package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/transitfeeds/mta-arrivals/internal/models"
)

// ErrDecode is returned when a payload is not a valid GTFS-RT FeedMessage.
var ErrDecode = errors.New("malformed GTFS-RT payload")

// Feed is the decoded content of a single GTFS-RT FeedMessage.
// Updates and Alerts keep the order their entities appear in on the wire.
type Feed struct {
	Timestamp time.Time
	Updates   []models.TripUpdate
	Alerts    []models.Alert
}

// Decoder turns raw GTFS-RT protobuf bytes into structured records.
// It holds no state between calls and is safe for concurrent use.
type Decoder struct{}

// Decode deserializes a FeedMessage in a single pass. Malformed bytes fail
// with an error wrapping ErrDecode; there are no partial results.
func (Decoder) Decode(b []byte) (*Feed, error) {
	var msg gtfs.FeedMessage
	if err := proto.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	f := &Feed{}
	if msg.Header != nil && msg.Header.Timestamp != nil {
		f.Timestamp = time.Unix(int64(msg.Header.GetTimestamp()), 0)
	}

	for _, entity := range msg.Entity {
		if tu := entity.GetTripUpdate(); tu != nil {
			f.Updates = append(f.Updates, convertTripUpdate(tu))
		}
		if a := entity.GetAlert(); a != nil {
			f.Alerts = append(f.Alerts, convertAlert(entity.GetId(), a))
		}
	}

	return f, nil
}

func convertTripUpdate(tu *gtfs.TripUpdate) models.TripUpdate {
	u := models.TripUpdate{}

	if trip := tu.GetTrip(); trip != nil {
		u.TripID = trip.GetTripId()
		u.RouteID = trip.GetRouteId()
		if trip.DirectionId != nil {
			dir := trip.GetDirectionId()
			u.DirectionID = &dir
		}
	}

	u.StopUpdates = make([]models.StopTimeUpdate, 0, len(tu.StopTimeUpdate))
	for _, stu := range tu.StopTimeUpdate {
		s := models.StopTimeUpdate{
			StopID:       stu.GetStopId(),
			StopSequence: stu.GetStopSequence(),
		}
		if arr := stu.GetArrival(); arr != nil {
			s.ArrivalTime = arr.GetTime()
			s.Delay = arr.GetDelay()
		}
		if dep := stu.GetDeparture(); dep != nil {
			s.DepartureTime = dep.GetTime()
		}
		u.StopUpdates = append(u.StopUpdates, s)
	}

	return u
}

func convertAlert(id string, a *gtfs.Alert) models.Alert {
	alert := models.Alert{
		ID:          id,
		Header:      translatedText(a.GetHeaderText()),
		Description: translatedText(a.GetDescriptionText()),
	}

	for _, ie := range a.GetInformedEntity() {
		if ie.RouteId != nil {
			alert.Routes = append(alert.Routes, ie.GetRouteId())
		}
		if ie.StopId != nil {
			alert.Stations = append(alert.Stations, ie.GetStopId())
		}
	}

	for _, ap := range a.GetActivePeriod() {
		var period models.TimePeriod
		if ap.Start != nil {
			start := time.Unix(int64(ap.GetStart()), 0)
			period.Start = &start
		}
		if ap.End != nil {
			end := time.Unix(int64(ap.GetEnd()), 0)
			period.End = &end
		}
		alert.ActivePeriods = append(alert.ActivePeriods, period)
	}

	return alert
}

// translatedText picks the first translation of a GTFS-RT TranslatedString.
func translatedText(ts *gtfs.TranslatedString) string {
	for _, tr := range ts.GetTranslation() {
		if tr.GetText() != "" {
			return tr.GetText()
		}
	}
	return ""
}
