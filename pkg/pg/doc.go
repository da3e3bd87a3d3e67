// Package pg bootstraps the PostgreSQL layer for billingkit using the pgx/v5
// driver: connection pooling with startup retries, goose migrations from an
// embedded filesystem, a readiness probe, and error predicates that stores
// use to classify write failures.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	// subscription.Migrate delegates here with its embedded migrations.
//	if err := subscription.Migrate(ctx, pool); err != nil {
//	    return err
//	}
//
//	store := subscription.NewPostgresStore(pool)
//
// # Configuration
//
// All settings come from PG_* environment variables; see the field tags on
// Config for names and defaults. PG_CONN_URL is required.
//
// # Error Handling
//
// [IsNotFoundError], [IsDuplicateKeyError], and [ConstraintName] unwrap
// pgx errors so stores can translate SQLSTATE codes and constraint names
// into their own sentinel errors without touching *pgconn.PgError directly.
package pg
