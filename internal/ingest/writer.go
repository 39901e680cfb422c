package ingest

import (
	"context"

	"github.com/arkilian/tripload/internal/cfstore"
	"github.com/arkilian/tripload/internal/config"
	"github.com/arkilian/tripload/pkg/types"
)

// Column families and qualifiers of the trip table.
const (
	FamilyRide = "ride_data"
	FamilyTime = "time_data"
	FamilyGeo  = "geo_data"
)

// Writer maps trip records onto row mutations.
type Writer struct {
	saltBuckets      int
	populateTimeData bool
}

// NewWriter creates a writer using the store's row-key and time_data settings.
func NewWriter(cfg config.StoreConfig) *Writer {
	return &Writer{
		saltBuckets:      cfg.SaltBuckets,
		populateTimeData: cfg.PopulateTimeData,
	}
}

// RowKey returns the row key for a record.
func (w *Writer) RowKey(rec types.TripRecord) string {
	return cfstore.SaltedRowKey(rec.RideID, w.saltBuckets)
}

// Cells maps the record's fields onto ride_data and geo_data. time_data is
// declared on the table but only written when populateTimeData is set.
func (w *Writer) Cells(rec types.TripRecord) cfstore.Cells {
	cells := cfstore.Cells{
		FamilyRide: {
			"ride_type":          []byte(rec.RideableType),
			"started_at":         []byte(rec.StartedAt),
			"ended_at":           []byte(rec.EndedAt),
			"start_station_name": []byte(rec.StartStationName),
			"start_station_id":   []byte(rec.StartStationID),
			"end_station_name":   []byte(rec.EndStationName),
			"end_station_id":     []byte(rec.EndStationID),
			"member_casual":      []byte(rec.MemberCasual),
		},
		FamilyGeo: {
			"start_lat": []byte(rec.StartLat),
			"start_lng": []byte(rec.StartLng),
			"end_lat":   []byte(rec.EndLat),
			"end_lng":   []byte(rec.EndLng),
		},
	}
	if w.populateTimeData {
		cells[FamilyTime] = map[string][]byte{
			"started_at": []byte(rec.StartedAt),
			"ended_at":   []byte(rec.EndedAt),
		}
	}
	return cells
}

// InsertRow appends the record to the batch. The batch sends itself when
// full; the caller sends the remainder after the last record.
func (w *Writer) InsertRow(ctx context.Context, batch *cfstore.Batch, rec types.TripRecord) error {
	return batch.Put(ctx, w.RowKey(rec), w.Cells(rec))
}
