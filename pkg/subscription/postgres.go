package subscription

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the subscriptions schema through pg.Migrate with the
// migrations embedded in this package, so deployments carry no migration
// files on disk.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pg.Migrate(ctx, pool, migrationsFS, "migrations", slog.Default())
}

// PostgresStore is a Store backed by PostgreSQL via pgx. The single-live
// invariant is enforced by a partial unique index, so it holds even across
// processes that bypass this package's locking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store using the given connection pool.
// Panics on a nil pool because that is a wiring bug.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: postgres store requires a connection pool")
	}
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `id, reference_id, plan, status, provider_customer_id,
	provider_subscription_id, price_id, seats, period_start, period_end,
	trial_start, trial_end, cancel_at_period_end, metadata, created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	if err := validateRecord(sub); err != nil {
		return err
	}

	const query = `
		INSERT INTO subscriptions (
			id, reference_id, plan, status, provider_customer_id,
			provider_subscription_id, price_id, seats, period_start, period_end,
			trial_start, trial_end, cancel_at_period_end, metadata, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now(), 1)
		RETURNING created_at, updated_at, version`

	row := s.pool.QueryRow(ctx, query,
		sub.ID, sub.ReferenceID, sub.Plan, sub.Status, sub.ProviderCustomerID,
		sub.ProviderSubscriptionID, sub.PriceID, sub.Seats, sub.PeriodStart, sub.PeriodEnd,
		sub.TrialStart, sub.TrialEnd, sub.CancelAtPeriodEnd, sub.Metadata,
	)
	if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt, &sub.Version); err != nil {
		return mapWriteError(err, sub)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	if err := validateRecord(sub); err != nil {
		return err
	}

	const query = `
		UPDATE subscriptions SET
			reference_id = $2, plan = $3, status = $4, provider_customer_id = $5,
			provider_subscription_id = $6, price_id = $7, seats = $8,
			period_start = $9, period_end = $10, trial_start = $11, trial_end = $12,
			cancel_at_period_end = $13, metadata = $14, updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $15
		RETURNING created_at, updated_at, version`

	row := s.pool.QueryRow(ctx, query,
		sub.ID, sub.ReferenceID, sub.Plan, sub.Status, sub.ProviderCustomerID,
		sub.ProviderSubscriptionID, sub.PriceID, sub.Seats, sub.PeriodStart, sub.PeriodEnd,
		sub.TrialStart, sub.TrialEnd, sub.CancelAtPeriodEnd, sub.Metadata, sub.Version,
	)
	err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt, &sub.Version)
	if err == nil {
		return nil
	}
	if !pg.IsNotFoundError(err) {
		return mapWriteError(err, sub)
	}

	// No row matched: either the record is gone or the version moved.
	var current int64
	switch scanErr := s.pool.QueryRow(ctx, `SELECT version FROM subscriptions WHERE id = $1`, sub.ID).Scan(&current); {
	case pg.IsNotFoundError(scanErr):
		return errors.Join(ErrNotFound, fmt.Errorf("id %s", sub.ID))
	case scanErr != nil:
		return fmt.Errorf("check subscription version: %w", scanErr)
	default:
		return errors.Join(ErrVersionMismatch, fmt.Errorf("id %s: have %d, want %d", sub.ID, sub.Version, current))
	}
}

func (s *PostgresStore) Supersede(ctx context.Context, oldID uuid.UUID, replacement *Subscription) error {
	if err := validateRecord(replacement); err != nil {
		return err
	}
	if oldID == replacement.ID {
		return errors.Join(ErrSubscriptionExists, errors.New("record cannot supersede itself"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin supersede: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, updated_at = now(), version = version + 1
		WHERE id = $1`, oldID, StatusCanceled)
	if err != nil {
		return fmt.Errorf("cancel superseded subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Join(ErrNotFound, fmt.Errorf("id %s", oldID))
	}

	const upsert = `
		INSERT INTO subscriptions (
			id, reference_id, plan, status, provider_customer_id,
			provider_subscription_id, price_id, seats, period_start, period_end,
			trial_start, trial_end, cancel_at_period_end, metadata, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now(), 1)
		ON CONFLICT (id) DO UPDATE SET
			reference_id = EXCLUDED.reference_id, plan = EXCLUDED.plan,
			status = EXCLUDED.status, provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			price_id = EXCLUDED.price_id, seats = EXCLUDED.seats,
			period_start = EXCLUDED.period_start, period_end = EXCLUDED.period_end,
			trial_start = EXCLUDED.trial_start, trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			metadata = EXCLUDED.metadata,
			updated_at = now(), version = subscriptions.version + 1
		RETURNING created_at, updated_at, version`

	row := tx.QueryRow(ctx, upsert,
		replacement.ID, replacement.ReferenceID, replacement.Plan, replacement.Status,
		replacement.ProviderCustomerID, replacement.ProviderSubscriptionID, replacement.PriceID,
		replacement.Seats, replacement.PeriodStart, replacement.PeriodEnd,
		replacement.TrialStart, replacement.TrialEnd, replacement.CancelAtPeriodEnd,
		replacement.Metadata,
	)
	if err := row.Scan(&replacement.CreatedAt, &replacement.UpdatedAt, &replacement.Version); err != nil {
		return mapWriteError(err, replacement)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit supersede: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, errors.Join(ErrNotFound, fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return sub, nil
}

func (s *PostgresStore) ByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, errors.Join(ErrNotFound, errors.New("empty provider subscription id"))
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1`, providerSubID)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, errors.Join(ErrNotFound, fmt.Errorf("provider subscription %q", providerSubID))
		}
		return nil, err
	}
	return sub, nil
}

func (s *PostgresStore) ByReference(ctx context.Context, referenceID string) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE reference_id = $1 ORDER BY created_at DESC`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LiveByReference(ctx context.Context, referenceID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE reference_id = $1 AND status IN ($2, $3)`,
		referenceID, StatusActive, StatusTrialing)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, errors.Join(ErrNotFound, fmt.Errorf("no live subscription for reference %q", referenceID))
		}
		return nil, err
	}
	return sub, nil
}

func (s *PostgresStore) CurrentByReference(ctx context.Context, referenceID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE reference_id = $1 AND status <> $2
		 ORDER BY created_at DESC LIMIT 1`,
		referenceID, StatusCanceled)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, errors.Join(ErrNotFound, fmt.Errorf("no current subscription for reference %q", referenceID))
		}
		return nil, err
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.ReferenceID, &sub.Plan, &sub.Status, &sub.ProviderCustomerID,
		&sub.ProviderSubscriptionID, &sub.PriceID, &sub.Seats, &sub.PeriodStart, &sub.PeriodEnd,
		&sub.TrialStart, &sub.TrialEnd, &sub.CancelAtPeriodEnd, &sub.Metadata,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.Version,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &sub, nil
}

// mapWriteError translates unique constraint violations into the store's
// error taxonomy, keyed by which index fired.
func mapWriteError(err error, sub *Subscription) error {
	if pg.IsDuplicateKeyError(err) {
		switch pg.ConstraintName(err) {
		case "subscriptions_one_live_per_reference_idx":
			return errors.Join(ErrDuplicateLive, fmt.Errorf("reference %q", sub.ReferenceID))
		case "subscriptions_provider_subscription_idx":
			return errors.Join(ErrSubscriptionExists, fmt.Errorf("provider subscription %q already tracked", sub.ProviderSubscriptionID))
		default:
			return errors.Join(ErrSubscriptionExists, fmt.Errorf("id %s", sub.ID))
		}
	}
	return fmt.Errorf("write subscription: %w", err)
}
