package trips

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrSource marks connection, auth and query failures against the trip store.
var ErrSource = errors.New("trip source error")

// ErrEmptyWindow is returned when the training window holds no trips.
var ErrEmptyWindow = errors.New("no trips in training window")

// ConnParams are per-request credentials for the trip store, supplied by the
// client in an INIT message.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

func (p ConnParams) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Name)
}

// Puller pulls trips for a half-open window [start, end).
type Puller interface {
	Pull(ctx context.Context, params ConnParams, start, end time.Time) ([]TripRecord, error)
}

// PostgresSource pulls trips from the upstream Postgres store. A connection
// is opened per pull because credentials arrive with each INIT.
type PostgresSource struct{}

type dbTrip struct {
	PickupTime     time.Time `db:"pickup_datetime"`
	DropoffTime    time.Time `db:"dropoff_datetime"`
	PickupLat      float64   `db:"pickup_latitude"`
	PickupLon      float64   `db:"pickup_longitude"`
	DropoffLat     float64   `db:"dropoff_latitude"`
	DropoffLon     float64   `db:"dropoff_longitude"`
	PassengerCount *float64  `db:"passenger_count"`
	TripDistance   *float64  `db:"trip_distance"`
	FareAmount     *float64  `db:"fare_amount"`
	TipAmount      *float64  `db:"tip_amount"`
	TollsAmount    *float64  `db:"tolls_amount"`
	TotalAmount    *float64  `db:"total_amount"`
}

const pullQuery = `
	SELECT
		pickup_datetime, dropoff_datetime,
		pickup_latitude, pickup_longitude,
		dropoff_latitude, dropoff_longitude,
		passenger_count, trip_distance,
		fare_amount, tip_amount, tolls_amount, total_amount
	FROM trips
	WHERE pickup_datetime >= $1
	  AND dropoff_datetime < $2`

// Pull fetches all trips with pickup_datetime >= start and
// dropoff_datetime < end.
func (PostgresSource) Pull(ctx context.Context, params ConnParams, start, end time.Time) ([]TripRecord, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", params.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrSource, err)
	}
	defer db.Close()

	var rows []dbTrip
	if err := db.SelectContext(ctx, &rows, pullQuery, start, end); err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrSource, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWindow
	}

	records := make([]TripRecord, len(rows))
	for i, r := range rows {
		records[i] = TripRecord{
			PickupTime:     r.PickupTime,
			DropoffTime:    r.DropoffTime,
			PickupLat:      r.PickupLat,
			PickupLon:      r.PickupLon,
			DropoffLat:     r.DropoffLat,
			DropoffLon:     r.DropoffLon,
			PassengerCount: deref(r.PassengerCount),
			TripDistance:   deref(r.TripDistance),
			FareAmount:     deref(r.FareAmount),
			TipAmount:      deref(r.TipAmount),
			TollsAmount:    deref(r.TollsAmount),
			TotalAmount:    deref(r.TotalAmount),
		}
	}
	return records, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
