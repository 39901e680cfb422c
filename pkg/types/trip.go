// Package types provides core data types for tripload.
package types

import "fmt"

// TripFieldCount is the number of positional fields in a trip record.
const TripFieldCount = 13

// Positional indices of the trip record fields in the source CSV.
const (
	FieldRideID = iota
	FieldRideableType
	FieldStartedAt
	FieldEndedAt
	FieldStartStationName
	FieldStartStationID
	FieldEndStationName
	FieldEndStationID
	FieldStartLat
	FieldStartLng
	FieldEndLat
	FieldEndLng
	FieldMemberCasual
)

// TripRecord is one bicycle trip as read from the source file.
// All fields are kept verbatim; no type coercion is applied.
type TripRecord struct {
	// RideID is the trip identifier and the row key in the store
	RideID string `json:"ride_id"`

	// RideableType is the vehicle type (e.g., "classic_bike", "electric_bike")
	RideableType string `json:"rideable_type"`

	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`

	StartStationName string `json:"start_station_name"`
	StartStationID   string `json:"start_station_id"`
	EndStationName   string `json:"end_station_name"`
	EndStationID     string `json:"end_station_id"`

	StartLat string `json:"start_lat"`
	StartLng string `json:"start_lng"`
	EndLat   string `json:"end_lat"`
	EndLng   string `json:"end_lng"`

	// MemberCasual is the rider category ("member" or "casual")
	MemberCasual string `json:"member_casual"`
}

// ParseTripRecord maps positional CSV fields onto a TripRecord.
// Rows with fewer than TripFieldCount fields are rejected; trailing
// extra fields are ignored.
func ParseTripRecord(fields []string) (TripRecord, error) {
	if len(fields) < TripFieldCount {
		return TripRecord{}, fmt.Errorf("%w: got %d, want %d", ErrShortRecord, len(fields), TripFieldCount)
	}

	return TripRecord{
		RideID:           fields[FieldRideID],
		RideableType:     fields[FieldRideableType],
		StartedAt:        fields[FieldStartedAt],
		EndedAt:          fields[FieldEndedAt],
		StartStationName: fields[FieldStartStationName],
		StartStationID:   fields[FieldStartStationID],
		EndStationName:   fields[FieldEndStationName],
		EndStationID:     fields[FieldEndStationID],
		StartLat:         fields[FieldStartLat],
		StartLng:         fields[FieldStartLng],
		EndLat:           fields[FieldEndLat],
		EndLng:           fields[FieldEndLng],
		MemberCasual:     fields[FieldMemberCasual],
	}, nil
}
