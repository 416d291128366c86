package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Migrate применяет встроенные миграции из каталога migrations и возвращает версию схемы.
// Используется goose.Provider, а не глобальное состояние goose: sqlite и postgres
// могут мигрировать одновременно (например, в тестах).
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, embedded fs.FS) (int64, error) {
	migrations, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return 0, fmt.Errorf("migrations dir: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("goose up failed: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}
