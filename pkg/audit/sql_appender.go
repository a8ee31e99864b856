package audit

import (
	"context"
	"fmt"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// Executor - узкий контракт выполнения запроса (реализует connection.Manager)
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) ([]adapters.Row, error)
}

// SQLAppenderConfig - конфигурация SQL appender
type SQLAppenderConfig struct {
	// Executor - через него идет INSERT в журнал
	Executor Executor

	// Dialect - стиль плейсхолдеров
	Dialect skeleton.Dialect

	// LogTable - таблица журнала (по умолчанию "logs")
	LogTable string

	// SkipFailures - не писать в журнал неудавшиеся мутации
	SkipFailures bool
}

// SQLAppender - строка в таблице журнала через скелет CreateLog
type SQLAppender struct {
	exec         Executor
	dialect      skeleton.Dialect
	logTable     string
	skipFailures bool
}

// NewSQLAppender - создать SQL appender
func NewSQLAppender(config SQLAppenderConfig) (*SQLAppender, error) {
	if config.Executor == nil {
		return nil, fmt.Errorf("audit: executor is required")
	}
	if config.LogTable == "" {
		config.LogTable = "logs"
	}

	return &SQLAppender{
		exec:         config.Executor,
		dialect:      config.Dialect,
		logTable:     config.LogTable,
		skipFailures: config.SkipFailures,
	}, nil
}

// Append - INSERT (table_name, changed_by, change_description)
func (sa *SQLAppender) Append(ctx context.Context, entry *Entry) error {
	if sa.skipFailures && entry.Status == StatusFailure {
		return nil
	}

	stmt := skeleton.BuildLog(sa.dialect, sa.logTable, entry.Table, entry.ChangedBy, entry.Summary())
	if _, err := sa.exec.Execute(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("insert into %s: %w", sa.logTable, err)
	}
	return nil
}

// Close - подключением владеет менеджер, закрывать нечего
func (sa *SQLAppender) Close() error {
	return nil
}

func (sa *SQLAppender) Name() string {
	return "sql"
}
