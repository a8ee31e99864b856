package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// AdapterType идентификатор MySQL адаптера
const AdapterType = "mysql"

var _ adapters.Adapter = (*Adapter)(nil)

// Adapter реализует adapters.Adapter для MySQL 8+ (нужны CTE и ROW_NUMBER)
type Adapter struct {
	db     *sql.DB
	runner *base.Runner
}

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect подключается к MySQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.runner = base.NewRunner(db, "mysql", nil)
	return nil
}

// normalizeDSN включает parseTime (DATETIME как time.Time, а не []byte)
// и clientFoundRows: rows_affected считает найденные строки, а не измененные,
// иначе UPDATE теми же значениями выглядит как отсутствие строки.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Ping проверяет соединение с базой данных
func (a *Adapter) Ping(ctx context.Context) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.Ping(ctx)
}

// Execute выполняет запрос; id вставленной строки приходит как last_insert_id
func (a *Adapter) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if a.runner == nil {
		return nil, adapters.ErrNotConnected
	}
	return a.runner.Execute(ctx, query, params...)
}

// BatchExecute выполняет statements в одной транзакции
// DDL в MySQL вызывает неявный COMMIT, атомарность гарантирована только для DML.
func (a *Adapter) BatchExecute(ctx context.Context, statements []string) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.BatchExecute(ctx, statements)
}

// Close закрывает соединение с базой данных
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
	return adapters.KindServerSQL
}

func (a *Adapter) Dialect() skeleton.Dialect {
	return skeleton.DialectMySQL
}

// GetDatabaseType возвращает тип базы данных
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetDatabaseVersion возвращает версию MySQL
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.db == nil {
		return "", adapters.ErrNotConnected
	}
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return "MySQL " + version, nil
}
