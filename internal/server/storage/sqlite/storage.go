package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/affilink/internal/server/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var _ storage.Storage = (*Storage)(nil)

// connPragmas выполняются драйвером на каждом новом соединении
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Storage хранит пользователей, историю ссылок и refresh токены в SQLite
type Storage struct {
	db            *sql.DB
	schemaVersion int64
}

// New открывает базу dbPath (":memory:" для тестов) и применяет миграции
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", withPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Один писатель: запись ссылок и ротация токенов не конкурируют за блокировку
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := storage.Migrate(ctx, db, goose.DialectSQLite3, embedMigrations)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Storage{db: db, schemaVersion: version}, nil
}

// withPragmas добавляет connPragmas к DSN в формате драйвера modernc.org/sqlite
func withPragmas(dbPath string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SchemaVersion возвращает версию схемы после миграций
func (s *Storage) SchemaVersion() int64 {
	return s.schemaVersion
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}
