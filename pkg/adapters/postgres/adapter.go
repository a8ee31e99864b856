package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(adapters.TypePostgres, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter - PostgreSQL через нативный pgxpool (без database/sql)
type Adapter struct {
	pool   *pgxpool.Pool
	schema string // public, custom, etc.
}

// Connect создает пул подключений
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	} else {
		config.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	}
	if cfg.IdleTimeout > 0 {
		config.MaxConnIdleTime = cfg.IdleTimeout
	}

	a.schema = cfg.Schema
	if a.schema == "" {
		a.schema = "public"
	}
	if a.schema != "public" {
		config.ConnConfig.RuntimeParams["search_path"] = a.schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.pool = pool
	return nil
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.pool == nil {
		return adapters.ErrNotConnected
	}
	return a.pool.Ping(ctx)
}

// Execute выполняет запрос
// Запросы с набором строк собираются pgx.RowToMap, остальные возвращают
// {"rows_affected": n} из CommandTag.
func (a *Adapter) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if a.pool == nil {
		return nil, adapters.ErrNotConnected
	}

	if !base.ReturnsRows(query) {
		tag, err := a.pool.Exec(ctx, query, params...)
		if err != nil {
			return nil, err
		}
		return []adapters.Row{{base.RowsAffectedKey: tag.RowsAffected()}}, nil
	}

	rows, err := a.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	result := make([]adapters.Row, len(maps))
	for i, m := range maps {
		row := make(adapters.Row, len(m))
		for k, v := range m {
			row[k] = convertValue(v)
		}
		result[i] = row
	}
	return result, nil
}

// BatchExecute выполняет statements в одной транзакции
// pgx.BeginFunc откатывает транзакцию при ошибке и фиксирует при успехе.
func (a *Adapter) BatchExecute(ctx context.Context, statements []string) error {
	if a.pool == nil {
		return adapters.ErrNotConnected
	}

	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
}

// Close закрывает пул
func (a *Adapter) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// Kind - нативный сетевой драйвер
func (a *Adapter) Kind() adapters.Kind {
	return adapters.KindNetworkDriver
}

// Dialect - RETURNING и $n плейсхолдеры
func (a *Adapter) Dialect() skeleton.Dialect {
	return skeleton.DialectPostgres
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return adapters.TypePostgres
}

// GetDatabaseVersion возвращает версию PostgreSQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.pool == nil {
		return "", adapters.ErrNotConnected
	}
	var version string
	if err := a.pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return "PostgreSQL " + version, nil
}

// Schema возвращает схему по умолчанию
func (a *Adapter) Schema() string {
	return a.schema
}
