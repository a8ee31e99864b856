package base

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/datacore/pkg/adapters"
)

// Ключи строки-результата для запросов без результирующего набора
const (
	RowsAffectedKey = "rows_affected"
	LastInsertIDKey = "last_insert_id"
)

// Runner - общий исполнитель запросов для адаптеров на database/sql
//
// Решает, идти через QueryContext или ExecContext, и нормализует результат
// в []adapters.Row.
type Runner struct {
	db      *sqlx.DB
	convert ValueConverter
}

// NewRunner оборачивает открытый *sql.DB
// driverName нужен sqlx для выбора bind-стиля; convert == nil означает ConvertValue.
func NewRunner(db *sql.DB, driverName string, convert ValueConverter) *Runner {
	if convert == nil {
		convert = ConvertValue
	}
	return &Runner{
		db:      sqlx.NewDb(db, driverName),
		convert: convert,
	}
}

// DB возвращает обернутое подключение
func (r *Runner) DB() *sqlx.DB {
	return r.db
}

// Ping проверяет доступность БД
func (r *Runner) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает пул
func (r *Runner) Close() error {
	return r.db.Close()
}

// Execute выполняет запрос
func (r *Runner) Execute(ctx context.Context, query string, params ...any) ([]adapters.Row, error) {
	if ReturnsRows(query) {
		return r.query(ctx, query, params)
	}
	return r.exec(ctx, query, params)
}

func (r *Runner) query(ctx context.Context, query string, params []any) ([]adapters.Row, error) {
	rows, err := r.db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := make([]adapters.Row, 0)
	for rows.Next() {
		values := make(map[string]any, len(types))
		if err := rows.MapScan(values); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(adapters.Row, len(values))
		for _, ct := range types {
			row[ct.Name()] = r.convert(ct.DatabaseTypeName(), values[ct.Name()])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) exec(ctx context.Context, query string, params []any) ([]adapters.Row, error) {
	res, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return []adapters.Row{ResultRow(res)}, nil
}

// ResultRow переводит sql.Result в строку {"rows_affected", "last_insert_id"}
// Значения, которые драйвер не поддерживает, в строку не попадают.
func ResultRow(res sql.Result) adapters.Row {
	row := adapters.Row{}
	if n, err := res.RowsAffected(); err == nil {
		row[RowsAffectedKey] = n
	}
	if id, err := res.LastInsertId(); err == nil {
		row[LastInsertIDKey] = id
	}
	return row
}

// BatchExecute выполняет statements в одной транзакции
// При любой ошибке транзакция откатывается, ошибка отката присоединяется к исходной.
func (r *Runner) BatchExecute(ctx context.Context, statements []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement %d: %w (rollback failed: %v)", i, err, rbErr)
			}
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowKeywords - первые слова запросов, которые возвращают набор строк
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"PRAGMA":   true,
	"SHOW":     true,
	"VALUES":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
}

// ReturnsRows определяет, вернет ли запрос набор строк
// SELECT/WITH/... а также INSERT/UPDATE/DELETE с RETURNING или OUTPUT INSERTED.
func ReturnsRows(query string) bool {
	q := strings.TrimLeft(skipComments(query), " \t\r\n(")

	end := strings.IndexFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	first := q
	if end >= 0 {
		first = q[:end]
	}
	if rowKeywords[strings.ToUpper(first)] {
		return true
	}

	upper := " " + strings.Join(strings.Fields(strings.ToUpper(q)), " ") + " "
	return strings.Contains(upper, " RETURNING ") ||
		strings.Contains(upper, " OUTPUT INSERTED.") ||
		strings.Contains(upper, " OUTPUT DELETED.")
}

// skipComments отрезает ведущие комментарии -- и /* */
func skipComments(query string) string {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			nl := strings.IndexByte(q, '\n')
			if nl < 0 {
				return ""
			}
			q = strings.TrimSpace(q[nl+1:])
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return ""
			}
			q = strings.TrimSpace(q[end+2:])
		default:
			return q
		}
	}
}
