package riderepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

const dateLayout = "2006-01-02"

// Repo is a Postgres implementation of riderepo.Repository.
//
// Update and Delete lock the ride row (SELECT ... FOR UPDATE) for the duration
// of the transaction, which serializes seat changes per ride.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const rideColumns = `
	r.id, r.external_id, r.host_id, r.host_name, r.ride_date, r.ride_time,
	r.vehicle, r.pickup, r.destination, r.total_seats, r.available_seats,
	r.fare_distance, r.fare_price, r.created_at`

func (r *Repo) Create(ctx context.Context, ride domain.Ride) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	rideUUID, err := uuid.Parse(string(ride.ID))
	if err != nil {
		return fmt.Errorf("invalid ride id: %w", err)
	}
	date, err := time.Parse(dateLayout, ride.Schedule.Date)
	if err != nil {
		return fmt.Errorf("invalid ride date: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var internalID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO rides (
				external_id, host_id, host_name, ride_date, ride_time,
				vehicle, pickup, destination, total_seats, available_seats,
				fare_distance, fare_price, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			RETURNING id
		`,
			rideUUID,
			string(ride.HostID),
			ride.HostName,
			date,
			ride.Schedule.Time,
			ride.Vehicle,
			ride.Pickup,
			ride.Destination,
			ride.TotalSeats,
			ride.AvailableSeats,
			ride.Fare.Distance,
			ride.Fare.Price,
			ride.CreatedAt.UTC(),
		).Scan(&internalID)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return riderepo.ErrAlreadyExists
			}
			return err
		}
		return insertPassengers(ctx, tx, internalID, ride.Passengers)
	})
}

func (r *Repo) Get(ctx context.Context, id domain.RideID) (domain.Ride, error) {
	if r.pool == nil {
		return domain.Ride{}, errors.New("nil postgres pool")
	}
	rideUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Ride{}, riderepo.ErrNotFound
	}
	var out domain.Ride
	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		internalID, ride, err := loadRide(ctx, tx, rideUUID, false)
		if err != nil {
			return err
		}
		ride.Passengers, err = loadPassengers(ctx, tx, internalID)
		out = ride
		return err
	})
	if err != nil {
		return domain.Ride{}, err
	}
	return out, nil
}

func (r *Repo) Update(ctx context.Context, id domain.RideID, fn riderepo.MutateFunc) (domain.Ride, error) {
	if r.pool == nil {
		return domain.Ride{}, errors.New("nil postgres pool")
	}
	rideUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Ride{}, riderepo.ErrNotFound
	}

	var out domain.Ride
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		internalID, ride, err := loadRide(ctx, tx, rideUUID, true)
		if err != nil {
			return err
		}
		if ride.Passengers, err = loadPassengers(ctx, tx, internalID); err != nil {
			return err
		}
		if err := fn(&ride); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET available_seats = $2 WHERE id = $1`, internalID, ride.AvailableSeats); err != nil {
			return err
		}
		// Rewriting the passenger rows keeps their order identical to ride.Passengers.
		if _, err := tx.Exec(ctx, `DELETE FROM ride_passengers WHERE ride_id = $1`, internalID); err != nil {
			return err
		}
		if err := insertPassengers(ctx, tx, internalID, ride.Passengers); err != nil {
			return err
		}
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, err
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.RideID, check riderepo.CheckFunc) (domain.Ride, error) {
	if r.pool == nil {
		return domain.Ride{}, errors.New("nil postgres pool")
	}
	rideUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Ride{}, riderepo.ErrNotFound
	}

	var out domain.Ride
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		internalID, ride, err := loadRide(ctx, tx, rideUUID, true)
		if err != nil {
			return err
		}
		if ride.Passengers, err = loadPassengers(ctx, tx, internalID); err != nil {
			return err
		}
		if check != nil {
			if err := check(ride); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, internalID); err != nil {
			return err
		}
		out = ride
		return nil
	})
	if err != nil {
		return domain.Ride{}, err
	}
	return out, nil
}

func (r *Repo) List(ctx context.Context) ([]domain.Ride, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}

	// One snapshot for rides and passengers.
	var out []domain.Ride
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+rideColumns+` FROM rides r ORDER BY r.ride_date, r.ride_time, r.id`)
		if err != nil {
			return err
		}
		var ids []int64
		byInternal := map[int64]int{}
		for rows.Next() {
			internalID, ride, err := scanRide(rows)
			if err != nil {
				rows.Close()
				return err
			}
			byInternal[internalID] = len(out)
			ids = append(ids, internalID)
			out = append(out, ride)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		prow, err := tx.Query(ctx, `
			SELECT ride_id, user_id, display_name
			FROM ride_passengers
			WHERE ride_id = ANY($1)
			ORDER BY ride_id, seq
		`, ids)
		if err != nil {
			return err
		}
		defer prow.Close()
		for prow.Next() {
			var (
				rideID int64
				p      domain.PassengerRef
				uid    string
			)
			if err := prow.Scan(&rideID, &uid, &p.DisplayName); err != nil {
				return err
			}
			p.UserID = domain.UserID(uid)
			i := byInternal[rideID]
			out[i].Passengers = append(out[i].Passengers, p)
		}
		return prow.Err()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Ride{}
	}
	return out, nil
}

func loadRide(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (int64, domain.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides r WHERE r.external_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	internalID, ride, err := scanRide(tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.Ride{}, riderepo.ErrNotFound
		}
		return 0, domain.Ride{}, err
	}
	return internalID, ride, nil
}

func scanRide(row pgx.Row) (int64, domain.Ride, error) {
	var (
		internalID int64
		extID      uuid.UUID
		hostID     string
		date       time.Time
		ride       domain.Ride
	)
	if err := row.Scan(
		&internalID,
		&extID,
		&hostID,
		&ride.HostName,
		&date,
		&ride.Schedule.Time,
		&ride.Vehicle,
		&ride.Pickup,
		&ride.Destination,
		&ride.TotalSeats,
		&ride.AvailableSeats,
		&ride.Fare.Distance,
		&ride.Fare.Price,
		&ride.CreatedAt,
	); err != nil {
		return 0, domain.Ride{}, err
	}
	ride.ID = domain.RideID(extID.String())
	ride.HostID = domain.UserID(hostID)
	ride.Schedule.Date = date.Format(dateLayout)
	ride.CreatedAt = ride.CreatedAt.UTC()
	ride.Passengers = []domain.PassengerRef{}
	return internalID, ride, nil
}

func loadPassengers(ctx context.Context, tx pgx.Tx, rideID int64) ([]domain.PassengerRef, error) {
	rows, err := tx.Query(ctx, `
		SELECT user_id, display_name
		FROM ride_passengers
		WHERE ride_id = $1
		ORDER BY seq
	`, rideID)
	if err != nil {
		return nil, err
	}
	ps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PassengerRef, error) {
		var (
			p   domain.PassengerRef
			uid string
		)
		err := row.Scan(&uid, &p.DisplayName)
		p.UserID = domain.UserID(uid)
		return p, err
	})
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []domain.PassengerRef{}
	}
	return ps, nil
}

func insertPassengers(ctx context.Context, tx pgx.Tx, rideID int64, ps []domain.PassengerRef) error {
	if len(ps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range ps {
		batch.Queue(`INSERT INTO ride_passengers (ride_id, user_id, display_name) VALUES ($1, $2, $3)`,
			rideID, string(p.UserID), p.DisplayName)
	}
	return tx.SendBatch(ctx, batch).Close()
}
