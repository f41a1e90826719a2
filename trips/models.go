// Package trips defines the raw trip record model and its Postgres source.
package trips

import (
	"math"
	"time"
)

// TripRecord is one taxi ride as logged upstream. Quantitative fields that
// were NULL in the source are carried as NaN and dropped by the cleaning
// pipeline.
type TripRecord struct {
	PickupTime     time.Time
	DropoffTime    time.Time
	PickupLat      float64
	PickupLon      float64
	DropoffLat     float64
	DropoffLon     float64
	PassengerCount float64
	TripDistance   float64
	FareAmount     float64
	TipAmount      float64
	TollsAmount    float64
	TotalAmount    float64
}

// QuantFields are the six quantitative columns the cleaning bounds apply to.
var QuantFields = []string{
	"passenger_count",
	"trip_distance",
	"fare_amount",
	"tip_amount",
	"tolls_amount",
	"total_amount",
}

// Quant returns the named quantitative field, or NaN for an unknown name.
func (t TripRecord) Quant(name string) float64 {
	switch name {
	case "passenger_count":
		return t.PassengerCount
	case "trip_distance":
		return t.TripDistance
	case "fare_amount":
		return t.FareAmount
	case "tip_amount":
		return t.TipAmount
	case "tolls_amount":
		return t.TollsAmount
	case "total_amount":
		return t.TotalAmount
	}
	return math.NaN()
}

// Columns is a projected column subset of a trip dataset.
type Columns map[string][]float64

// Get returns the named column and whether it is present.
func (c Columns) Get(name string) ([]float64, bool) {
	col, ok := c[name]
	return col, ok
}

// Project extracts the named quantitative columns from a batch of records.
func Project(records []TripRecord, names ...string) Columns {
	cols := make(Columns, len(names))
	for _, name := range names {
		values := make([]float64, len(records))
		for i, r := range records {
			values[i] = r.Quant(name)
		}
		cols[name] = values
	}
	return cols
}
