package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/audit"
	"github.com/ruslano69/datacore/pkg/config"
	"github.com/ruslano69/datacore/pkg/connection"
	"github.com/ruslano69/datacore/pkg/security"
)

type fakeState struct {
	state connection.State
}

func (f fakeState) State() connection.State { return f.state }

func (f fakeState) Stats() connection.Stats {
	return connection.Stats{Backend: "sqlite", State: f.state.String()}
}

func TestRouter_Readyz(t *testing.T) {
	tests := []struct {
		state connection.State
		want  int
	}{
		{connection.StateConnected, http.StatusOK},
		{connection.StateDisconnected, http.StatusServiceUnavailable},
		{connection.StateReconnecting, http.StatusServiceUnavailable},
		{connection.StateClosed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		router := newRouter(fakeState{tt.state}, zerolog.Nop())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rec.Code != tt.want {
			t.Errorf("state %s: /readyz = %d, want %d", tt.state, rec.Code, tt.want)
		}
		if !strings.Contains(rec.Body.String(), tt.state.String()) {
			t.Errorf("state %s: body %q does not name the state", tt.state, rec.Body.String())
		}
	}
}

func TestRouter_HealthStatsMetrics(t *testing.T) {
	router := newRouter(fakeState{connection.StateConnected}, zerolog.Nop())

	for _, path := range []string{"/healthz", "/stats", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats connection.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Stats is not JSON: %v", err)
	}
	if stats.Backend != "sqlite" {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.File = filepath.Join(t.TempDir(), "datacore.db")
	cfg.Audit.Async = false
	return cfg
}

func TestRunExec(t *testing.T) {
	cfg := sqliteConfig(t)

	var out bytes.Buffer
	if err := runExec(cfg, security.Guard{}, "SELECT 1 AS one, 'x' AS name", &out); err != nil {
		t.Fatalf("runExec failed: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out.String())
	}
	if len(rows) != 1 || rows[0]["one"] != float64(1) || rows[0]["name"] != "x" {
		t.Errorf("Unexpected rows: %v", rows)
	}

	if err := runExec(cfg, security.Guard{}, "SELECT * FROM missing", &out); err == nil {
		t.Error("Expected error for missing table")
	}
}

func TestRunExec_Guard(t *testing.T) {
	cfg := sqliteConfig(t)
	var out bytes.Buffer

	err := runExec(cfg, security.Guard{}, "CREATE TABLE t (id INTEGER)", &out)
	if !errors.Is(err, security.ErrNotReadOnly) {
		t.Fatalf("Expected ErrNotReadOnly, got %v", err)
	}

	if err := runExec(cfg, security.Guard{Unsafe: true}, "CREATE TABLE t (id INTEGER)", &out); err != nil {
		t.Fatalf("Unsafe exec failed: %v", err)
	}
}

func TestInitApp_DevAudit(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Audit.File.Path = filepath.Join(t.TempDir(), "audit.log")
	cfg.Audit.DefaultUser = "system"
	ctx := context.Background()

	a, err := initApp(ctx, cfg, true)
	if err != nil {
		t.Fatalf("initApp failed: %v", err)
	}

	if a.manager.State() != connection.StateConnected {
		t.Fatalf("Expected connected manager, got %s", a.manager.State())
	}
	if _, err := a.manager.Execute(ctx, `CREATE TABLE logs (
		id INTEGER PRIMARY KEY,
		table_name TEXT,
		changed_by TEXT,
		change_description TEXT
	)`); err != nil {
		t.Fatalf("Create logs failed: %v", err)
	}

	if err := a.audit.Log(ctx, audit.NewEntry(audit.OpCreate, "products").WithRecord(1)); err != nil {
		t.Fatalf("Audit log failed: %v", err)
	}

	if n := len(a.miniRedis.Keys()); n != 1 {
		t.Errorf("Expected 1 redis key from audit stream, got %d", n)
	}
	rows, err := a.manager.Execute(ctx, "SELECT changed_by FROM logs")
	if err != nil || len(rows) != 1 || rows[0]["changed_by"] != "system" {
		t.Errorf("Expected one audit row by system, got %v (%v)", rows, err)
	}

	a.shutdown(ctx)

	data, err := os.ReadFile(cfg.Audit.File.Path)
	if err != nil || !strings.Contains(string(data), `"table":"products"`) {
		t.Errorf("Expected audit file line, got %q (%v)", data, err)
	}
	if a.manager.State() != connection.StateClosed {
		t.Errorf("Expected closed manager, got %s", a.manager.State())
	}
}

func TestInitApp_UnknownBroker(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Audit.Broker.Enabled = true
	cfg.Audit.Broker.Broker.Type = "msmq"

	if _, err := initApp(context.Background(), cfg, false); err == nil {
		t.Error("Expected error for unsupported broker")
	}
}
