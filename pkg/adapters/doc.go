/*
Package adapters - единый интерфейс драйверов СУБД для connection.Manager.

# Архитектура

	┌─────────────────────────────────────────┐
	│  connection.Manager                     │
	│  (state machine, ping, reconnect)       │
	└─────────────────┬───────────────────────┘
	                  │ владеет одним Adapter
	┌─────────────────▼───────────────────────┐
	│  type Adapter interface {               │  ← pkg/adapters/adapter.go
	│    Connect / Ping / Close               │
	│    Execute(ctx, sql, params...) []Row   │
	│    BatchExecute(ctx, statements)        │
	│    Kind() / Dialect()                   │
	│  }                                       │
	└─────────────────┬───────────────────────┘
	                  │
	   ┌───────┬──────┼───────┬─────────┐
	   │       │      │       │         │
	 sqlite  mssql  mysql  postgres   libsql

Адаптеры на database/sql (sqlite, mssql, mysql, libsql) разделяют
base.Runner: выбор Query/Exec, нормализацию строк в []Row и транзакционный
batch. postgres работает напрямую через pgxpool.

# Регистрация

Каждый пакет адаптера регистрирует себя в init():

	import _ "github.com/ruslano69/datacore/pkg/adapters/sqlite"

	adapter, err := adapters.NewWithoutConnect("sqlite")

# Семейства драйверов

  - KindServerSQL: mssql, mysql - пул подключений, MaxConns/MinConns/IdleTimeout
  - KindEmbeddedFile: sqlite - один файл, один writer
  - KindNetworkDriver: postgres (pgx), libsql (HTTP/WebSocket клиент)

libsql не поддерживает BatchExecute и возвращает ErrNotSupported.
*/
package adapters
