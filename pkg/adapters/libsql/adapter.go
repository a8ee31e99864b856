// Package libsql - адаптер удаленной libSQL/Turso БД через libsql-client-go.
//
// Диалект SQLite (RETURNING, ? плейсхолдеры), транспорт HTTP/WebSocket.
// Транзакционный BatchExecute не поддерживается: возвращается adapters.ErrNotSupported.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

const driverLibSQL = "libsql"

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register(adapters.TypeLibSQL, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter - сетевой клиент libSQL
type Adapter struct {
	db     *sql.DB
	runner *base.Runner
}

// supportedSchemes - схемы URL удаленного сервера
// Локальные файлы обслуживает адаптер sqlite.
var supportedSchemes = map[string]bool{
	"libsql": true,
	"https":  true,
	"http":   true,
	"wss":    true,
	"ws":     true,
}

// Connect подключается к удаленной БД
// DSN: "libsql://<db>-<org>.turso.io?authToken=<token>"
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if err := validateDSN(cfg.DSN); err != nil {
		return err
	}

	db, err := sql.Open(driverLibSQL, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.runner = base.NewRunner(db, driverLibSQL, nil)
	return nil
}

func validateDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("invalid libsql DSN: %w", err)
	}
	if !supportedSchemes[u.Scheme] {
		return fmt.Errorf("libsql: unsupported scheme %q (use the sqlite adapter for local files)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("libsql: DSN has no host")
	}
	return nil
}

// Ping - SELECT 1 на сервере
func (a *Adapter) Ping(ctx context.Context) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.Ping(ctx)
}

// Execute выполняет запрос
func (a *Adapter) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if a.runner == nil {
		return nil, adapters.ErrNotConnected
	}
	return a.runner.Execute(ctx, query, params...)
}

// BatchExecute не поддерживается
func (a *Adapter) BatchExecute(ctx context.Context, statements []string) error {
	return fmt.Errorf("libsql batch of %d statements: %w", len(statements), adapters.ErrNotSupported)
}

// Close закрывает клиент
func (a *Adapter) Close(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.runner = nil
	return err
}

func (a *Adapter) Kind() adapters.Kind {
	return adapters.KindNetworkDriver
}

func (a *Adapter) Dialect() skeleton.Dialect {
	return skeleton.DialectSQLite
}

func (a *Adapter) GetDatabaseType() string {
	return adapters.TypeLibSQL
}
