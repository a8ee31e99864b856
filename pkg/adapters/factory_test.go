package adapters_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruslano69/datacore/pkg/adapters"
	_ "github.com/ruslano69/datacore/pkg/adapters/postgres" // Register postgres
	_ "github.com/ruslano69/datacore/pkg/adapters/sqlite"   // Register sqlite
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// stubAdapter - адаптер без подключения для проверки реестра
type stubAdapter struct {
	dbType string
}

func (s *stubAdapter) Connect(ctx context.Context, cfg adapters.Config) error { return nil }
func (s *stubAdapter) Ping(ctx context.Context) error                         { return nil }
func (s *stubAdapter) Execute(ctx context.Context, sql string, params ...any) ([]adapters.Row, error) {
	return nil, nil
}
func (s *stubAdapter) BatchExecute(ctx context.Context, statements []string) error {
	return adapters.ErrNotSupported
}
func (s *stubAdapter) Close(ctx context.Context) error { return nil }
func (s *stubAdapter) Kind() adapters.Kind              { return adapters.KindNetworkDriver }
func (s *stubAdapter) Dialect() skeleton.Dialect        { return skeleton.DialectPostgres }
func (s *stubAdapter) GetDatabaseType() string          { return s.dbType }

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgresql", adapters.TypePostgres},
		{"PG", adapters.TypePostgres},
		{"sqlserver", adapters.TypeMSSQL},
		{" SQLite3 ", adapters.TypeSQLite},
		{"turso", adapters.TypeLibSQL},
		{"mysql", adapters.TypeMySQL},
		{"oracle", "oracle"},
	}

	for _, tt := range tests {
		if got := adapters.NormalizeType(tt.in); got != tt.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFactory_Registry(t *testing.T) {
	f := adapters.NewFactory()
	f.Register("postgresql", func() adapters.Adapter { return &stubAdapter{dbType: "postgres"} })

	if !f.IsRegistered("postgres") || !f.IsRegistered("pgx") {
		t.Fatal("Synonyms must resolve to the registered type")
	}
	if types := f.GetRegisteredTypes(); len(types) != 1 || types[0] != "postgres" {
		t.Errorf("Unexpected registered types: %v", types)
	}

	a, err := f.CreateWithoutConnect("PostgreSQL")
	if err != nil {
		t.Fatalf("CreateWithoutConnect failed: %v", err)
	}
	if a.GetDatabaseType() != "postgres" {
		t.Errorf("Unexpected adapter type %q", a.GetDatabaseType())
	}

	f.Unregister("postgres")
	if f.IsRegistered("postgres") {
		t.Error("Expected postgres to be unregistered")
	}
}

func TestFactory_UnknownAdapter(t *testing.T) {
	_, err := adapters.New(context.Background(), adapters.Config{Type: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("Expected error for unknown adapter type")
	}
	if !strings.Contains(err.Error(), "unknown database type") || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("Error should list available types, got: %v", err)
	}
}

func TestFactory_SQLiteWorkflow(t *testing.T) {
	ctx := context.Background()

	a, err := adapters.New(ctx, adapters.Config{
		Type: "sqlite3",
		DSN:  filepath.Join(t.TempDir(), "factory.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create SQLite adapter: %v", err)
	}
	defer a.Close(ctx)

	if a.GetDatabaseType() != adapters.TypeSQLite || a.Kind() != adapters.KindEmbeddedFile {
		t.Errorf("Unexpected adapter: type=%s kind=%s", a.GetDatabaseType(), a.Kind())
	}
	if a.Dialect() != skeleton.DialectSQLite {
		t.Errorf("Unexpected dialect %v", a.Dialect())
	}

	v, ok := a.(adapters.Versioner)
	if !ok {
		t.Fatal("SQLite adapter should report its version")
	}
	if version, err := v.GetDatabaseVersion(ctx); err != nil || version == "" {
		t.Errorf("GetDatabaseVersion = %q, %v", version, err)
	}

	if err := a.BatchExecute(ctx, []string{
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO items (name) VALUES ('a')",
	}); err != nil {
		t.Fatalf("BatchExecute failed: %v", err)
	}

	rows, err := a.Execute(ctx, "INSERT INTO items (name) VALUES (?)", "b")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["last_insert_id"] != int64(2) {
		t.Errorf("Unexpected insert result: %v", rows)
	}

	rows, err = a.Execute(ctx, "SELECT name FROM items ORDER BY id")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 || rows[1]["name"] != "b" {
		t.Errorf("Unexpected rows: %v", rows)
	}
}

func TestFactory_PostgresWithoutConnect(t *testing.T) {
	a, err := adapters.NewWithoutConnect("postgresql")
	if err != nil {
		t.Fatalf("NewWithoutConnect failed: %v", err)
	}
	if a.GetDatabaseType() != adapters.TypePostgres || a.Dialect() != skeleton.DialectPostgres {
		t.Errorf("Unexpected adapter: %s %v", a.GetDatabaseType(), a.Dialect())
	}
	if err := a.Ping(context.Background()); err == nil {
		t.Error("Ping before Connect must fail")
	}
}
