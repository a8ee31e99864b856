package skeleton

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/ruslano69/datacore/pkg/core/sqltemplate"
)

// ErrInvalidWindow - некорректные page/limit для пагинации
var ErrInvalidWindow = errors.New("invalid pagination window")

// EntityBindings - фрагменты SQL конкретной сущности, подставляемые один раз при старте
type EntityBindings struct {
	// Table - таблица для INSERT/UPDATE/DELETE
	Table string

	// IDField - колонка первичного ключа в Table (по умолчанию "id")
	IDField string

	// SelectFields - список полей проекции, с алиасами
	// Пример: "p.id AS product_id, p.name AS name, t.name AS tag"
	SelectFields string

	// SelectTables - FROM часть проекции, с JOIN-ами
	// Пример: "products p LEFT JOIN product_tags t ON t.product_id = p.id"
	SelectTables string

	// SelectID - выражение id в проекции для FindByID (например "p.id")
	SelectID string

	// KeyColumn - выражение ключа сущности в SelectTables (для FindAll)
	KeyColumn string

	// KeyParam - алиас ключа в проекции (для Find), например "product_id"
	KeyParam string

	// FilterJoins - условие соединения AliasItems с FilteredRows
	// По умолчанию "AliasItems.<KeyParam> = FilteredRows.item_key"
	FilterJoins string

	// Scope - постоянное условие выборки, например "p.deleted_at IS NULL"
	// По умолчанию "1=1"
	Scope string

	// LogTable - таблица журнала аудита (по умолчанию "logs")
	LogTable string
}

func (b EntityBindings) withDefaults() EntityBindings {
	if b.IDField == "" {
		b.IDField = "id"
	}
	if b.SelectID == "" {
		b.SelectID = b.IDField
	}
	if b.KeyColumn == "" {
		b.KeyColumn = b.SelectID
	}
	if b.KeyParam == "" {
		b.KeyParam = b.IDField
	}
	if b.FilterJoins == "" {
		b.FilterJoins = fmt.Sprintf("AliasItems.%s = FilteredRows.item_key", b.KeyParam)
	}
	if b.Scope == "" {
		b.Scope = "1=1"
	}
	if b.LogTable == "" {
		b.LogTable = "logs"
	}
	return b
}

func (b EntityBindings) validate() error {
	if b.Table == "" {
		return fmt.Errorf("entity table is required")
	}
	if b.SelectFields == "" {
		return fmt.Errorf("entity %s: select fields are required", b.Table)
	}
	if b.SelectTables == "" {
		return fmt.Errorf("entity %s: select tables are required", b.Table)
	}
	return nil
}

func (b EntityBindings) toMap() map[string]string {
	return map[string]string{
		"Table":              b.Table,
		"IdField":            b.IDField,
		"SelectFields":       b.SelectFields,
		"SelectTables":       b.SelectTables,
		"IncludedItemsTable": b.SelectTables,
		"SelectId":           b.SelectID,
		"KeyColumn":          b.KeyColumn,
		"KeyParam":           b.KeyParam,
		"FilterJoins":        b.FilterJoins,
		"Scope":              b.Scope,
		"LogTable":           b.LogTable,
	}
}

// Statement - готовый к выполнению SQL и его параметры
type Statement struct {
	SQL  string
	Args []any
}

// EntityQueries - скелеты с подставленными фрагментами одной сущности
type EntityQueries struct {
	dialect  Dialect
	bindings EntityBindings
	queries  Set
	strict   bool
}

// NewEntityQueries создает набор запросов сущности для диалекта
// strict включает проверку неразрешенных плейсхолдеров в Build (debug/test режим).
func NewEntityQueries(d Dialect, b EntityBindings, strict bool) (*EntityQueries, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	b = b.withDefaults()

	fragments := b.toMap()
	queries := make(Set, len(Operations))
	for op, tpl := range SetFor(d) {
		queries[op] = sqltemplate.Substitute(tpl, fragments)
	}

	return &EntityQueries{
		dialect:  d,
		bindings: b,
		queries:  queries,
		strict:   strict,
	}, nil
}

// Dialect возвращает диалект набора
func (q *EntityQueries) Dialect() Dialect {
	return q.dialect
}

// Bindings возвращает фрагменты сущности (с примененными значениями по умолчанию)
func (q *EntityQueries) Bindings() EntityBindings {
	return q.bindings
}

// Template возвращает частично заполненный скелет операции
func (q *EntityQueries) Template(op Operation) string {
	return q.queries[op]
}

// Build подставляет значения времени запроса и переводит ? в стиль диалекта
//
// Rebind выполняется только когда есть args: в literal режиме значения уже
// вписаны в SQL и могут содержать '?' внутри строковых литералов.
func (q *EntityQueries) Build(op Operation, bindings map[string]string, args ...any) (Statement, error) {
	tpl, ok := q.queries[op]
	if !ok {
		return Statement{}, fmt.Errorf("no skeleton for operation %s", op)
	}

	if field, ok := bindings["DynamicOrderByField"]; ok && op == OpFind {
		bindings = maps.Clone(bindings)
		bindings["DynamicSortKey"] = q.sortKey(field)
	}

	sql, err := sqltemplate.Render(tpl, bindings, q.strict)
	if err != nil {
		return Statement{}, fmt.Errorf("%s %s: %w", q.bindings.Table, op, err)
	}

	if len(args) > 0 {
		sql = q.dialect.Rebind(sql)
	}

	return Statement{SQL: sql, Args: args}, nil
}

// sortKey - позиция ключа в Find: MIN поля сортировки либо сам ключ
// Ключ уже в GROUP BY, а MIN для него может быть не определен (uuid в PostgreSQL).
func (q *EntityQueries) sortKey(field string) string {
	if field == q.bindings.KeyParam {
		return field
	}
	return "MIN(" + field + ")"
}

// Window переводит 0-based page и limit в 1-based включающий интервал рангов
func Window(page, limit int) (start, end int, err error) {
	if page < 0 {
		return 0, 0, fmt.Errorf("%w: page must be >= 0, got %d", ErrInvalidWindow, page)
	}
	if limit <= 0 {
		return 0, 0, fmt.Errorf("%w: limit must be > 0, got %d", ErrInvalidWindow, limit)
	}

	start = page*limit + 1
	end = start + limit - 1
	return start, end, nil
}

// Columns - список колонок для INSERT: "a, b, c"
func Columns(columns []string) string {
	return strings.Join(columns, ", ")
}

// Placeholders - n нейтральных плейсхолдеров: "?, ?, ?"
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Assignments - SET часть UPDATE: "a = ?, b = ?"
func Assignments(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " = ?"
	}
	return strings.Join(parts, ", ")
}

// BuildLog - INSERT в журнал аудита вне контекста сущности
// Значения всегда передаются параметрами.
func BuildLog(d Dialect, logTable, table, changedBy, description string) Statement {
	if logTable == "" {
		logTable = "logs"
	}
	sql := sqltemplate.Substitute(CreateLog, map[string]string{
		"LogTable":          logTable,
		"TableName":         "?",
		"ChangedBy":         "?",
		"ChangeDescription": "?",
	})
	return Statement{
		SQL:  d.Rebind(sql),
		Args: []any{table, changedBy, description},
	}
}
