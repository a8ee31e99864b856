package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

const driverSqlite = "sqlite"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(adapters.TypeSQLite, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter - встраиваемая SQLite на modernc.org/sqlite (без cgo)
type Adapter struct {
	db     *sql.DB
	runner *base.Runner
}

// Connect открывает файл БД
//
// Пул ограничен одним подключением: SQLite допускает одного writer-а,
// а ":memory:" у каждого подключения пула была бы своя.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("sqlite: empty DSN (file path)")
	}

	db, err := sql.Open(driverSqlite, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.applyPragmas(ctx)
	a.runner = base.NewRunner(db, driverSqlite, nil)

	return nil
}

// applyPragmas - WAL, ожидание блокировки и внешние ключи
// Ошибки не фатальны: для ":memory:" WAL недоступен.
func (a *Adapter) applyPragmas(ctx context.Context) {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := a.db.ExecContext(ctx, pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("sqlite pragma failed")
		}
	}
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.Ping(ctx)
}

// Execute выполняет запрос через base.Runner
func (a *Adapter) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if a.runner == nil {
		return nil, adapters.ErrNotConnected
	}
	return a.runner.Execute(ctx, query, params...)
}

// BatchExecute выполняет statements в одной транзакции
func (a *Adapter) BatchExecute(ctx context.Context, statements []string) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.BatchExecute(ctx, statements)
}

// Close закрывает файл БД
func (a *Adapter) Close(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.runner = nil
	return err
}

// Kind - встраиваемая файловая БД
func (a *Adapter) Kind() adapters.Kind {
	return adapters.KindEmbeddedFile
}

// Dialect - RETURNING и ? плейсхолдеры
func (a *Adapter) Dialect() skeleton.Dialect {
	return skeleton.DialectSQLite
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return adapters.TypeSQLite
}

// GetDatabaseVersion возвращает версию SQLite
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.db == nil {
		return "", adapters.ErrNotConnected
	}
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return "SQLite " + version, nil
}
