/**
 * @description
 * Postgres-backed listing repository on pgx. The row layout is flat; the
 * promotion and auto-renewal clusters are rebuilt into their pointer form
 * on scan so the rest of the engine never sees half-set nullable fields.
 *
 * Expected schema (managed by external migrations):
 *
 *   listings(
 *     id text primary key, owner_id text not null, store_id text,
 *     title text not null, description text, price bigint, term_days int,
 *     ad_type text, is_premium bool, is_featured bool, is_vip bool,
 *     views bigint, purchased_views bigint, target_views bigint,
 *     promo_tier text, promo_end_date timestamptz, promo_grace_end timestamptz,
 *     renewal_package_id text, renewal_price bigint, renewal_used bool,
 *     renewal_payment_date timestamptz, renewal_grace_end timestamptz,
 *     renewal_next timestamptz,
 *     creative_effects jsonb,
 *     created_at timestamptz, expires_at timestamptz,
 *     updated_at timestamptz, deleted_at timestamptz
 *   )
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adverto/listing-service/internal/domain"
)

// PostgresRepository implements the listing repository against Postgres.
type PostgresRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository creates a repository on the given pool.
func NewPostgresRepository(db *pgxpool.Pool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

const listingColumns = `
	id, owner_id, store_id, title, description, price, term_days,
	ad_type, is_premium, is_featured, is_vip,
	views, purchased_views, target_views,
	promo_tier, promo_end_date, promo_grace_end,
	renewal_package_id, renewal_price, renewal_used,
	renewal_payment_date, renewal_grace_end, renewal_next,
	creative_effects,
	created_at, expires_at, updated_at, deleted_at
`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var (
		l                  domain.Listing
		promoTier          *string
		promoEnd           *time.Time
		promoGraceEnd      *time.Time
		renewalPackageID   *string
		renewalPrice       *int64
		renewalUsed        *bool
		renewalPaymentDate *time.Time
		renewalGraceEnd    *time.Time
		renewalNext        *time.Time
		effectsJSON        []byte
	)

	err := row.Scan(
		&l.ID, &l.OwnerID, &l.StoreID, &l.Title, &l.Description, &l.Price, &l.TermDays,
		&l.AdType, &l.IsPremium, &l.IsFeatured, &l.IsVip,
		&l.Views, &l.PurchasedViews, &l.TargetViews,
		&promoTier, &promoEnd, &promoGraceEnd,
		&renewalPackageID, &renewalPrice, &renewalUsed,
		&renewalPaymentDate, &renewalGraceEnd, &renewalNext,
		&effectsJSON,
		&l.CreatedAt, &l.ExpiresAt, &l.UpdatedAt, &l.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if promoTier != nil && promoEnd != nil {
		l.Promotion = &domain.Promotion{
			Tier:         domain.AdType(*promoTier),
			EndDate:      *promoEnd,
			GraceEndDate: promoGraceEnd,
		}
	}
	if renewalPackageID != nil && renewalPrice != nil && renewalGraceEnd != nil {
		l.AutoRenewal = &domain.AutoRenewal{
			PackageID: *renewalPackageID,
			Price:     *renewalPrice,
			Paid:      true,
			GraceEnd:  *renewalGraceEnd,
		}
		if renewalUsed != nil {
			l.AutoRenewal.Used = *renewalUsed
		}
		if renewalPaymentDate != nil {
			l.AutoRenewal.PaymentDate = *renewalPaymentDate
		}
		if renewalNext != nil {
			l.AutoRenewal.NextRenewal = *renewalNext
		}
	}
	if len(effectsJSON) > 0 {
		if err := json.Unmarshal(effectsJSON, &l.CreativeEffects); err != nil {
			return nil, fmt.Errorf("decode creative effects: %w", err)
		}
	}
	return &l, nil
}

func listingArgs(l *domain.Listing) ([]interface{}, error) {
	var (
		promoTier          *string
		promoEnd           *time.Time
		promoGraceEnd      *time.Time
		renewalPackageID   *string
		renewalPrice       *int64
		renewalUsed        *bool
		renewalPaymentDate *time.Time
		renewalGraceEnd    *time.Time
		renewalNext        *time.Time
	)

	if p := l.Promotion; p != nil {
		tier := string(p.Tier)
		promoTier = &tier
		promoEnd = &p.EndDate
		promoGraceEnd = p.GraceEndDate
	}
	if a := l.AutoRenewal; a != nil {
		renewalPackageID = &a.PackageID
		renewalPrice = &a.Price
		renewalUsed = &a.Used
		renewalPaymentDate = &a.PaymentDate
		renewalGraceEnd = &a.GraceEnd
		renewalNext = &a.NextRenewal
	}

	var effectsJSON []byte
	if len(l.CreativeEffects) > 0 {
		b, err := json.Marshal(l.CreativeEffects)
		if err != nil {
			return nil, fmt.Errorf("encode creative effects: %w", err)
		}
		effectsJSON = b
	}

	return []interface{}{
		l.ID, l.OwnerID, l.StoreID, l.Title, l.Description, l.Price, l.TermDays,
		l.AdType, l.IsPremium, l.IsFeatured, l.IsVip,
		l.Views, l.PurchasedViews, l.TargetViews,
		promoTier, promoEnd, promoGraceEnd,
		renewalPackageID, renewalPrice, renewalUsed,
		renewalPaymentDate, renewalGraceEnd, renewalNext,
		effectsJSON,
		l.CreatedAt, l.ExpiresAt, l.UpdatedAt, l.DeletedAt,
	}, nil
}

// Create inserts a listing; a duplicate ID becomes an idempotent update of
// the existing row.
func (r *PostgresRepository) Create(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" || l.Title == "" || l.OwnerID == "" {
		return domain.ErrValidation
	}

	args, err := listingArgs(l)
	if err != nil {
		return err
	}

	// A duplicate ID replaces the full row, same as the memory backend.
	query := `
        INSERT INTO listings (` + listingColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
        ON CONFLICT (id) DO UPDATE SET
            owner_id = EXCLUDED.owner_id,
            store_id = EXCLUDED.store_id,
            title = EXCLUDED.title,
            description = EXCLUDED.description,
            price = EXCLUDED.price,
            term_days = EXCLUDED.term_days,
            ad_type = EXCLUDED.ad_type,
            is_premium = EXCLUDED.is_premium,
            is_featured = EXCLUDED.is_featured,
            is_vip = EXCLUDED.is_vip,
            views = EXCLUDED.views,
            purchased_views = EXCLUDED.purchased_views,
            target_views = EXCLUDED.target_views,
            promo_tier = EXCLUDED.promo_tier,
            promo_end_date = EXCLUDED.promo_end_date,
            promo_grace_end = EXCLUDED.promo_grace_end,
            renewal_package_id = EXCLUDED.renewal_package_id,
            renewal_price = EXCLUDED.renewal_price,
            renewal_used = EXCLUDED.renewal_used,
            renewal_payment_date = EXCLUDED.renewal_payment_date,
            renewal_grace_end = EXCLUDED.renewal_grace_end,
            renewal_next = EXCLUDED.renewal_next,
            creative_effects = EXCLUDED.creative_effects,
            created_at = EXCLUDED.created_at,
            expires_at = EXCLUDED.expires_at,
            updated_at = EXCLUDED.updated_at,
            deleted_at = EXCLUDED.deleted_at
    `
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// Get fetches one listing by ID, soft-deleted or not.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	return scanListing(r.db.QueryRow(ctx, query, id))
}

// Save replaces the full listing record.
func (r *PostgresRepository) Save(ctx context.Context, l *domain.Listing) error {
	args, err := listingArgs(l)
	if err != nil {
		return err
	}

	query := `
        UPDATE listings SET
            owner_id = $2, store_id = $3, title = $4, description = $5, price = $6,
            term_days = $7,
            ad_type = $8, is_premium = $9, is_featured = $10, is_vip = $11,
            views = $12, purchased_views = $13, target_views = $14,
            promo_tier = $15, promo_end_date = $16, promo_grace_end = $17,
            renewal_package_id = $18, renewal_price = $19, renewal_used = $20,
            renewal_payment_date = $21, renewal_grace_end = $22, renewal_next = $23,
            creative_effects = $24,
            created_at = $25, expires_at = $26, updated_at = $27, deleted_at = $28
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateFields applies a partial update; absent rows and empty patches are
// warned no-ops and nothing is ever created.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, patch domain.ListingPatch) error {
	if patch.IsEmpty() {
		r.logger.Warn("empty patch ignored", "listing_id", id)
		return nil
	}

	query := `
        UPDATE listings SET
            title = COALESCE($2, title),
            description = COALESCE($3, description),
            price = COALESCE($4, price),
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, patch.Title, patch.Description, patch.Price)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("update on absent listing ignored", "listing_id", id)
	}
	return nil
}

// SoftDelete stamps deleted_at and keeps the row; a repeated delete keeps
// the original timestamp.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE listings SET deleted_at = COALESCE(deleted_at, $2) WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("soft delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Query filters and orders listings with the fixed placement ranking ahead
// of the caller-selected sort, mirroring domain.SortListings.
func (r *PostgresRepository) Query(ctx context.Context, f domain.Filter) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ` + arg(f.OwnerID)
	}
	if f.StoreID != "" {
		query += ` AND store_id = ` + arg(f.StoreID)
	}
	if f.AdType != "" {
		query += ` AND ad_type = ` + arg(string(f.AdType))
	}
	if f.MinPrice > 0 {
		query += ` AND price >= ` + arg(f.MinPrice)
	}
	if f.MaxPrice > 0 {
		query += ` AND price <= ` + arg(f.MaxPrice)
	}
	if f.Query != "" {
		p := arg("%" + f.Query + "%")
		query += ` AND (title ILIKE ` + p + ` OR description ILIKE ` + p + `)`
	}

	query += `
        ORDER BY
            CASE
                WHEN is_featured AND target_views IS NOT NULL THEN 0
                WHEN is_featured THEN 1
                WHEN is_premium THEN 2
                WHEN is_vip THEN 3
                ELSE 4
            END`

	dir := "DESC"
	if f.SortOrder == domain.SortAsc {
		dir = "ASC"
	}
	switch f.SortBy {
	case domain.SortByPrice:
		query += `, price ` + dir
	case domain.SortByViews:
		query += `, views ` + dir
	case domain.SortByCreatedAt:
		query += `, created_at ` + dir
	}
	query += `, created_at DESC`

	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg((page-1)*f.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListActive returns every non-deleted listing for the reconciler sweep.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE deleted_at IS NULL`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active listings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
