/**
 * @description
 * Postgres wallet ledger. Debits lock the balance row with FOR UPDATE so
 * the validate-then-charge sequence is atomic; a concurrent purchase for
 * the same user cannot double-spend the bonus balance.
 *
 * Expected schema:
 *   wallets(user_id text primary key, wallet_balance bigint, bonus_balance bigint)
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

// PostgresWallet implements the wallet ledger against Postgres.
type PostgresWallet struct {
	db *pgxpool.Pool
}

// NewPostgresWallet creates a wallet ledger on the given pool.
func NewPostgresWallet(db *pgxpool.Pool) *PostgresWallet {
	return &PostgresWallet{db: db}
}

// Debit charges an amount, draining the bonus balance before the wallet
// balance, inside a single transaction with the row locked.
func (w *PostgresWallet) Debit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 || amount > domain.MaxWalletTransaction {
		return domain.ErrValidation
	}

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback(ctx)

	var wallet, bonus int64
	err = tx.QueryRow(ctx,
		`SELECT wallet_balance, bonus_balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&wallet, &bonus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInsufficientFunds
		}
		return fmt.Errorf("lock wallet row: %w", err)
	}

	if bonus+wallet < amount {
		return domain.ErrInsufficientFunds
	}

	fromBonus := amount
	if fromBonus > bonus {
		fromBonus = bonus
	}

	_, err = tx.Exec(ctx,
		`UPDATE wallets SET bonus_balance = bonus_balance - $2, wallet_balance = wallet_balance - $3 WHERE user_id = $1`,
		userID, fromBonus, amount-fromBonus,
	)
	if err != nil {
		return fmt.Errorf("apply debit: %w", err)
	}

	return tx.Commit(ctx)
}

// Credit adds to the wallet balance only, enforcing the per-transaction and
// resulting-balance ceilings. The row is created on first credit.
func (w *PostgresWallet) Credit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 || amount > domain.MaxWalletTransaction {
		return domain.ErrValidation
	}

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (user_id, wallet_balance, bonus_balance) VALUES ($1, 0, 0)
         ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ensure wallet row: %w", err)
	}

	var wallet int64
	err = tx.QueryRow(ctx,
		`SELECT wallet_balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&wallet)
	if err != nil {
		return fmt.Errorf("lock wallet row: %w", err)
	}

	if wallet+amount > domain.MaxWalletBalance {
		return domain.ErrValidation
	}

	_, err = tx.Exec(ctx,
		`UPDATE wallets SET wallet_balance = wallet_balance + $2 WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("apply credit: %w", err)
	}

	return tx.Commit(ctx)
}

// Balance returns the current wallet and bonus balances; an absent row
// reads as zero.
func (w *PostgresWallet) Balance(ctx context.Context, userID string) (wallet, bonus int64, err error) {
	err = w.db.QueryRow(ctx,
		`SELECT wallet_balance, bonus_balance FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&wallet, &bonus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read wallet balance: %w", err)
	}
	return wallet, bonus, nil
}
