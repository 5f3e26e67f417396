package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store.
// Records are scoped by token issuer so user ids from different issuers never collide.
type Store struct {
	pool   *pgxpool.Pool
	issuer string

	retention time.Duration
	clock     clock.Clock
}

func NewStore(pool *pgxpool.Pool, jwtIssuer string) *Store {
	return &Store{pool: pool, issuer: jwtIssuer}
}

// NewStoreWithRetention ignores records created more than retention ago.
// Expired rows are overwritten by the next Put for the same fingerprint.
func NewStoreWithRetention(pool *pgxpool.Pool, jwtIssuer string, retention time.Duration, clk clock.Clock) *Store {
	return &Store{pool: pool, issuer: jwtIssuer, retention: retention, clock: clk}
}

// cutoff is the oldest created_at still served, or nil when records never expire.
func (s *Store) cutoff() *time.Time {
	if s.retention <= 0 || s.clock == nil {
		return nil
	}
	c := s.clock.Now().Add(-s.retention).UTC()
	return &c
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	row := s.pool.QueryRow(ctx, `
		SELECT status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND issuer = $2
		  AND user_id = $3
		  AND method = $4
		  AND route = $5
		  AND body_hash = $6
		  AND ($7::timestamptz IS NULL OR created_at >= $7)
	`,
		string(fp.Key),
		s.issuer,
		string(fp.UserID),
		fp.Method,
		fp.Route,
		fp.BodyHash,
		s.cutoff(),
	)
	var rec idempotency.Record
	if err := row.Scan(&rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key,
			issuer,
			user_id,
			method,
			route,
			body_hash,
			status_code,
			content_type,
			body,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (idempotency_key, issuer, user_id, method, route, body_hash)
		DO UPDATE SET
			status_code = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at
	`,
		string(fp.Key),
		s.issuer,
		string(fp.UserID),
		fp.Method,
		fp.Route,
		fp.BodyHash,
		rec.StatusCode,
		rec.ContentType,
		rec.Body,
		createdAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok {
			return fmt.Errorf("store idempotency record (%s): %w", pe.Code, err)
		}
		return err
	}
	return nil
}

func (s *Store) Reserve(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	body := rec.Body
	if body == nil {
		body = []byte{}
	}
	// An expired row counts as absent and is taken over in place.
	var status int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key, issuer, user_id, method, route, body_hash,
			status_code, content_type, body, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (idempotency_key, issuer, user_id, method, route, body_hash)
		DO UPDATE SET
			status_code = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at
		WHERE $11::timestamptz IS NOT NULL AND idempotency_keys.created_at < $11
		RETURNING status_code
	`,
		string(fp.Key),
		s.issuer,
		string(fp.UserID),
		fp.Method,
		fp.Route,
		fp.BodyHash,
		rec.StatusCode,
		rec.ContentType,
		body,
		rec.CreatedAt.UTC(),
		s.cutoff(),
	).Scan(&status)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		cur, _, err := s.Get(ctx, fp)
		return cur, false, err
	default:
		return idempotency.Record{}, false, err
	}
}

func (s *Store) Release(ctx context.Context, fp idempotency.Fingerprint) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE idempotency_key = $1
		  AND issuer = $2
		  AND user_id = $3
		  AND method = $4
		  AND route = $5
		  AND body_hash = $6
	`, string(fp.Key), s.issuer, string(fp.UserID), fp.Method, fp.Route, fp.BodyHash)
	return err
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}
