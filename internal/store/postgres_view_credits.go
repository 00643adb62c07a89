/**
 * @description
 * Postgres unused-view carryover ledger. Consume is a single
 * UPDATE ... RETURNING, so the read-and-zero is atomic and a double-create
 * race can never transfer the same credit twice.
 *
 * Expected schema:
 *   view_credits(user_id text primary key, credit bigint not null default 0)
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adverto/listing-service/internal/domain"
)

// PostgresViewCredits implements the carryover ledger against Postgres.
type PostgresViewCredits struct {
	db *pgxpool.Pool
}

// NewPostgresViewCredits creates a carryover ledger on the given pool.
func NewPostgresViewCredits(db *pgxpool.Pool) *PostgresViewCredits {
	return &PostgresViewCredits{db: db}
}

// Add credits unused views, creating the row implicitly on first credit.
func (v *PostgresViewCredits) Add(ctx context.Context, userID string, n int64) error {
	if n <= 0 {
		return domain.ErrValidation
	}

	_, err := v.db.Exec(ctx,
		`INSERT INTO view_credits (user_id, credit) VALUES ($1, $2)
         ON CONFLICT (user_id) DO UPDATE SET credit = view_credits.credit + EXCLUDED.credit`,
		userID, n,
	)
	if err != nil {
		return fmt.Errorf("add view credit: %w", err)
	}
	return nil
}

// Consume atomically reads and zeroes the user's credit.
func (v *PostgresViewCredits) Consume(ctx context.Context, userID string) (int64, error) {
	var credit int64
	err := v.db.QueryRow(ctx,
		`WITH current AS (
            SELECT user_id, credit FROM view_credits WHERE user_id = $1 AND credit > 0 FOR UPDATE
         )
         UPDATE view_credits v SET credit = 0
         FROM current
         WHERE v.user_id = current.user_id
         RETURNING current.credit`,
		userID,
	).Scan(&credit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("consume view credit: %w", err)
	}
	return credit, nil
}

// Balance returns the current credit without consuming it.
func (v *PostgresViewCredits) Balance(ctx context.Context, userID string) (int64, error) {
	var credit int64
	err := v.db.QueryRow(ctx,
		`SELECT credit FROM view_credits WHERE user_id = $1`,
		userID,
	).Scan(&credit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read view credit: %w", err)
	}
	return credit, nil
}
