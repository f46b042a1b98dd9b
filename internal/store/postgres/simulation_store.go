package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/depthlab/internal/domain"
)

// SimulationStore implements domain.SimulationStore using PostgreSQL. Each
// accepted simulation is recorded once, together with the impact computed at
// submission time.
type SimulationStore struct {
	pool *pgxpool.Pool
}

// NewSimulationStore creates a new SimulationStore backed by the given
// connection pool.
func NewSimulationStore(pool *pgxpool.Pool) *SimulationStore {
	return &SimulationStore{pool: pool}
}

// Insert records an accepted simulation. The impact is stored as JSONB; a nil
// impact is stored as SQL NULL.
func (s *SimulationStore) Insert(ctx context.Context, key domain.FeedKey, order domain.SimulatedOrder) error {
	var impactJSON []byte
	if order.Impact != nil {
		var err error
		impactJSON, err = json.Marshal(order.Impact)
		if err != nil {
			return fmt.Errorf("postgres: marshal impact for %s: %w", order.ID, err)
		}
	}

	const query = `
		INSERT INTO simulations
			(id, venue, symbol, kind, side, price, quantity, delay_ms, created_at, impact)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9::double precision / 1000), $10)`
	_, err := s.pool.Exec(ctx, query,
		order.ID, key.Venue.String(), key.Symbol,
		string(order.Kind), string(order.Side),
		order.Price, order.Quantity, order.DelayMs, order.CreatedAt, impactJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert simulation %s: %w", order.ID, err)
	}
	return nil
}

// ListRecent returns the most recently created simulations, newest first.
func (s *SimulationStore) ListRecent(ctx context.Context, limit int) ([]domain.SimulatedOrder, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, kind, side, price, quantity, delay_ms,
		       (extract(epoch FROM created_at) * 1000)::bigint, impact
		FROM simulations
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	defer rows.Close()

	var orders []domain.SimulatedOrder
	for rows.Next() {
		var o domain.SimulatedOrder
		var kind, side string
		var impactJSON []byte

		if err := rows.Scan(&o.ID, &kind, &side, &o.Price, &o.Quantity, &o.DelayMs, &o.CreatedAt, &impactJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan simulation: %w", err)
		}
		o.Kind = domain.OrderKind(kind)
		o.Side = domain.OrderSide(side)

		if impactJSON != nil {
			var impact domain.ImpactResult
			if err := json.Unmarshal(impactJSON, &impact); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal impact for %s: %w", o.ID, err)
			}
			o.Impact = &impact
		}

		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list simulations rows: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.SimulationStore = (*SimulationStore)(nil)
