package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/sqlite"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
	"github.com/ruslano69/datacore/pkg/resilience"
	"github.com/ruslano69/datacore/pkg/retry"
)

func TestFileAppender_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	fa, err := NewFileAppender(FileAppenderConfig{FilePath: path})
	if err != nil {
		t.Fatalf("NewFileAppender failed: %v", err)
	}

	ctx := context.Background()
	fa.Append(ctx, NewEntry(OpCreate, "products").WithRecord(1))
	fa.Append(ctx, NewEntry(OpUpdate, "products").WithRecord(1))
	if err := fa.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("Line is not JSON: %v", err)
	}
	if e.Operation != OpUpdate {
		t.Errorf("Expected update, got %s", e.Operation)
	}

	if err := fa.Append(ctx, NewEntry(OpCreate, "t")); err == nil {
		t.Error("Append after Close must fail")
	}
}

func TestFileAppender_RotateCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fa, err := NewFileAppender(FileAppenderConfig{
		FilePath:   path,
		MaxSize:    300,
		MaxBackups: 2,
		Compress:   true,
	})
	if err != nil {
		t.Fatalf("NewFileAppender failed: %v", err)
	}
	defer fa.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := fa.Append(ctx, NewEntry(OpCreate, "products").WithRecord(i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(fa.BackupPath(3)); !os.IsNotExist(err) {
		t.Errorf("Expected at most 2 backups, found %s", fa.BackupPath(3))
	}

	compressed, err := os.ReadFile(fa.BackupPath(1))
	if err != nil {
		t.Fatalf("Expected compressed backup: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("Backup is not valid zstd: %v", err)
	}
	if !bytes.Contains(plain, []byte(`"operation":"create"`)) {
		t.Errorf("Unexpected backup content: %s", plain)
	}

	if fa.CurrentSize() > 300 {
		t.Errorf("Current file exceeds MaxSize: %d", fa.CurrentSize())
	}
}

func TestLogAppender(t *testing.T) {
	var buf bytes.Buffer
	la := NewLogAppender(zerolog.New(&buf), LevelStandard)

	entry := NewEntry(OpUpdate, "products").WithRecord(5).WithError(errors.New("conflict"))
	if err := la.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON log line: %v", err)
	}
	if line["level"] != "warn" || line["table"] != "products" || line["error"] != "conflict" {
		t.Errorf("Unexpected log line: %v", line)
	}
}

func TestRedisAppender(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ra := NewRedisAppenderWithClient(client, RedisAppenderConfig{MaxLen: 3, TTL: time.Hour})
	ctx := context.Background()

	sub := client.Subscribe(ctx, ra.Channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := ra.Append(ctx, NewEntry(OpCreate, "products").WithRecord(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	items, err := client.LRange(ctx, ra.ListKey("products"), 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected list trimmed to 3, got %d", len(items))
	}

	var newest Entry
	if err := json.Unmarshal([]byte(items[0]), &newest); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if newest.RecordID != "4" {
		t.Errorf("Expected newest record 4 first, got %s", newest.RecordID)
	}

	if ttl := mr.TTL(ra.ListKey("products")); ttl != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", ttl)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	if !strings.Contains(msg.Payload, `"table":"products"`) {
		t.Errorf("Unexpected event payload: %s", msg.Payload)
	}

	if err := ra.Close(); err != nil {
		t.Errorf("Close must not close a shared client: %v", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		t.Errorf("Shared client closed: %v", err)
	}
}

func TestRedisAppender_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	ra, err := NewRedisAppender(RedisAppenderConfig{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisAppender failed: %v", err)
	}
	defer ra.Close()
	mr.Close()

	if err := ra.Append(context.Background(), NewEntry(OpCreate, "t")); err == nil {
		t.Error("Expected error when redis is down")
	}
}

func TestSQLAppender_SQLite(t *testing.T) {
	ctx := context.Background()
	db := &sqlite.Adapter{}
	if err := db.Connect(ctx, adapters.Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer db.Close(ctx)

	if _, err := db.Execute(ctx, `CREATE TABLE logs (
		id INTEGER PRIMARY KEY,
		table_name TEXT NOT NULL,
		changed_by TEXT,
		change_description TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		t.Fatalf("Create table failed: %v", err)
	}

	sa, err := NewSQLAppender(SQLAppenderConfig{Executor: db, Dialect: skeleton.DialectSQLite, SkipFailures: true})
	if err != nil {
		t.Fatalf("NewSQLAppender failed: %v", err)
	}

	if err := sa.Append(ctx, NewEntry(OpCreate, "products").WithRecord(3).WithUser("alice")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := sa.Append(ctx, NewEntry(OpUpdate, "products").WithError(errors.New("x"))); err != nil {
		t.Fatalf("Append of skipped failure returned error: %v", err)
	}

	rows, err := db.Execute(ctx, "SELECT table_name, changed_by, change_description FROM logs")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 log row, got %d", len(rows))
	}
	if rows[0]["table_name"] != "products" || rows[0]["changed_by"] != "alice" ||
		rows[0]["change_description"] != "create products id=3" {
		t.Errorf("Unexpected log row: %v", rows[0])
	}
}

func TestSQLAppender_MissingTable(t *testing.T) {
	ctx := context.Background()
	db := &sqlite.Adapter{}
	if err := db.Connect(ctx, adapters.Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer db.Close(ctx)

	sa, _ := NewSQLAppender(SQLAppenderConfig{Executor: db, Dialect: skeleton.DialectSQLite, LogTable: "missing"})
	if err := sa.Append(ctx, NewEntry(OpCreate, "t")); err == nil {
		t.Error("Expected error for missing log table")
	}

	if _, err := NewSQLAppender(SQLAppenderConfig{}); err == nil {
		t.Error("Expected error without executor")
	}
}

// fakePublisher отклоняет первые failures публикаций, затем принимает сообщения
type fakePublisher struct {
	mu       sync.Mutex
	failures int
	keys     []string
	closed   bool
}

func (f *fakePublisher) Connect(ctx context.Context) error { return nil }
func (f *fakePublisher) Ping(ctx context.Context) error    { return nil }
func (f *fakePublisher) GetBrokerType() string             { return "fake" }

func (f *fakePublisher) Publish(ctx context.Context, key string, message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func testPublishConfig(dlqPath string) retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Strategy:     retry.BackoffConstant,
	}.WithDLQ(dlqPath, 10)
}

func TestBrokerAppender_RetriesThenPublishes(t *testing.T) {
	pub := &fakePublisher{failures: 2}
	ba, err := NewBrokerAppender(pub, testPublishConfig(filepath.Join(t.TempDir(), "dlq.json")), LevelStandard)
	if err != nil {
		t.Fatalf("NewBrokerAppender failed: %v", err)
	}

	if err := ba.Append(context.Background(), NewEntry(OpCreate, "orders")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(pub.keys) != 1 || pub.keys[0] != "orders" {
		t.Errorf("Expected one message keyed by table, got %v", pub.keys)
	}
	if ba.DLQ().Size() != 0 {
		t.Errorf("Expected empty DLQ, got %d", ba.DLQ().Size())
	}
	if err := ba.Close(); err != nil || !pub.closed {
		t.Errorf("Close failed: %v", err)
	}
}

func TestBrokerAppender_DeadLetters(t *testing.T) {
	pub := &fakePublisher{failures: 100}
	ba, err := NewBrokerAppender(pub, testPublishConfig(filepath.Join(t.TempDir(), "dlq.json")), LevelStandard)
	if err != nil {
		t.Fatalf("NewBrokerAppender failed: %v", err)
	}
	defer ba.Close()

	entry := NewEntry(OpHardDelete, "orders").WithRecord(9)
	if err := ba.Append(context.Background(), entry); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}

	dead := ba.DLQ().Entries()
	if len(dead) != 1 {
		t.Fatalf("Expected 1 DLQ entry, got %d", len(dead))
	}
	if dead[0].Attempts != 3 || !strings.Contains(string(dead[0].Payload), entry.ID) {
		t.Errorf("Unexpected DLQ entry: %+v", dead[0])
	}
}

func TestBrokerAppender_BreakerOpens(t *testing.T) {
	pub := &fakePublisher{failures: 100}
	ba, err := NewBrokerAppender(pub, testPublishConfig(filepath.Join(t.TempDir(), "dlq.json")), LevelStandard)
	if err != nil {
		t.Fatalf("NewBrokerAppender failed: %v", err)
	}
	defer ba.Close()

	breaker, err := resilience.New(resilience.Config{MaxFailures: 1, OpenTimeout: time.Hour})
	if err != nil {
		t.Fatalf("resilience.New failed: %v", err)
	}
	ba.WithBreaker(breaker)
	ctx := context.Background()

	if err := ba.Append(ctx, NewEntry(OpCreate, "orders")); err == nil {
		t.Fatal("Expected publish error")
	}
	if breaker.State() != resilience.StateOpen {
		t.Fatalf("Expected open breaker, got %s", breaker.State())
	}

	pub.mu.Lock()
	before := pub.failures
	pub.mu.Unlock()

	err = ba.Append(ctx, NewEntry(OpCreate, "orders"))
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if pub.failures != before {
		t.Error("Open breaker must not call the publisher")
	}

	dead := ba.DLQ().Entries()
	if len(dead) != 2 || dead[1].FailureType != retry.FailureCircuitOpen {
		t.Errorf("Expected retry and circuit DLQ entries, got %+v", dead)
	}
}
