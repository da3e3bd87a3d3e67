package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies goose migrations read from fsys/dir against the pool.
// Migrations ship embedded in the calling package, so deployments carry no
// migration files on disk. goose drives database/sql, hence the stdlib
// bridge over the pgx pool; closing the bridge returns its connections to
// the pool without closing it.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, log logger) error {
	if log == nil {
		log = slog.Default()
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
	}(db)

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	// Route goose output through the structured logger instead of stdout.
	goose.SetLogger(newSlogAdapter(log))

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}

// migrateSlogAdapter bridges goose's Printf-style logging onto the logger
// interface, mapping Fatalf to ErrorContext and Printf to InfoContext.
type migrateSlogAdapter struct {
	log logger
}

func newSlogAdapter(log logger) goose.Logger {
	return &migrateSlogAdapter{log: log}
}

func (a *migrateSlogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a *migrateSlogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}
