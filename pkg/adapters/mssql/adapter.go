package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // MS SQL Server driver

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// Compile-time check
var _ adapters.Adapter = (*Adapter)(nil)

// Adapter implements adapters.Adapter for Microsoft SQL Server.
type Adapter struct {
	db     *sql.DB
	runner *base.Runner

	// Version information
	serverVersion    int    // Major version: 11=2012, 13=2016, 14=2017, 15=2019, 16=2022
	serverVersionStr string // Full version string
	compatLevel      int    // Database compatibility level: 110=2012, 130=2016, etc.
}

// Compatibility levels
const (
	CompatSQL2012 = 110
	CompatSQL2016 = 130
	CompatSQL2017 = 140
	CompatSQL2019 = 150
	CompatSQL2022 = 160
)

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect opens the pool and detects the server version.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	if err := a.detectCompatibility(ctx); err != nil {
		db.Close()
		a.db = nil
		return fmt.Errorf("failed to detect compatibility: %w", err)
	}
	if a.compatLevel > 0 && a.compatLevel < CompatSQL2012 {
		db.Close()
		a.db = nil
		return fmt.Errorf("SQL Server compatibility level %d is below 2012 (%d): OFFSET/ROW_NUMBER skeletons unsupported",
			a.compatLevel, CompatSQL2012)
	}

	a.runner = base.NewRunner(db, driverName, convertValue)
	return nil
}

func configurePool(db *sql.DB, cfg adapters.Config) {
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
}

// detectCompatibility detects SQL Server version and database compatibility level.
func (a *Adapter) detectCompatibility(ctx context.Context) error {
	var version string
	err := a.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get server version: %w", err)
	}

	a.serverVersionStr = version
	a.serverVersion = parseServerVersion(version)

	err = a.db.QueryRowContext(ctx, `
		SELECT compatibility_level
		FROM sys.databases
		WHERE name = DB_NAME()
	`).Scan(&a.compatLevel)
	if err != nil {
		return fmt.Errorf("failed to get compatibility level: %w", err)
	}

	return nil
}

// parseServerVersion parses SQL Server version string to major version number.
// Examples:
//   - "11.0.2100.60" → 11 (SQL Server 2012)
//   - "15.0.2000.5"  → 15 (SQL Server 2019)
func parseServerVersion(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// serverVersionName returns human-readable server version name.
func serverVersionName(major int) string {
	switch major {
	case 11:
		return "SQL Server 2012"
	case 12:
		return "SQL Server 2014"
	case 13:
		return "SQL Server 2016"
	case 14:
		return "SQL Server 2017"
	case 15:
		return "SQL Server 2019"
	case 16:
		return "SQL Server 2022"
	default:
		return fmt.Sprintf("SQL Server (version %d)", major)
	}
}

// Ping tests the database connection.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.Ping(ctx)
}

// Execute runs one statement through base.Runner.
func (a *Adapter) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if a.runner == nil {
		return nil, adapters.ErrNotConnected
	}
	return a.runner.Execute(ctx, query, params...)
}

// BatchExecute runs statements in one transaction.
func (a *Adapter) BatchExecute(ctx context.Context, statements []string) error {
	if a.runner == nil {
		return adapters.ErrNotConnected
	}
	return a.runner.BatchExecute(ctx, statements)
}

// Close closes the pool.
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
	return skeleton.DialectMSSQL
}

// GetDatabaseType returns the adapter type.
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetDatabaseVersion returns the SQL Server version string.
func (a *Adapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	if a.db == nil {
		return "", adapters.ErrNotConnected
	}
	return fmt.Sprintf("%s %s (compatibility level %d)",
		serverVersionName(a.serverVersion), a.serverVersionStr, a.compatLevel), nil
}
