package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/adapters/base"
	"github.com/ruslano69/datacore/pkg/audit"
	"github.com/ruslano69/datacore/pkg/core/criteria"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
)

// ErrNotFound - запись с таким id отсутствует (или скрыта Scope)
var ErrNotFound = errors.New("record not found")

// Executor - то, что нужно репозиторию от connection.Manager
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) ([]adapters.Row, error)
}

// dialecter - Executor, знающий свой SQL диалект
type dialecter interface {
	Dialect() skeleton.Dialect
}

// Options - описание сущности и зависимости репозитория
type Options struct {
	// Entity - фрагменты SQL сущности
	Entity skeleton.EntityBindings

	// Dialect - по умолчанию берется у Executor (connection.Manager.Dialect)
	Dialect skeleton.Dialect

	// DefaultSort - сортировка, если критерии ее не задают
	DefaultSort criteria.SortSpec

	// SearchColumns - колонки AliasItems для свободного поиска
	SearchColumns []string

	// Strict - ошибка на неразрешенных @плейсхолдерах (debug/test)
	Strict bool

	// Audit - журнал мутаций; nil = без аудита
	Audit audit.Logger

	Logger zerolog.Logger
}

// Page - одна страница Find
type Page struct {
	Rows []adapters.Row

	// Total - число различных ключей, прошедших фильтр
	// Для пустой страницы (за последней) равен 0.
	Total int64
}

// Base - общая часть репозиториев
type Base struct {
	exec        Executor
	queries     *skeleton.EntityQueries
	defaultSort criteria.SortSpec
	search      []string
	audit       audit.Logger
	logger      zerolog.Logger
}

// NewBase проверяет описание сущности и заполняет скелеты один раз
func NewBase(exec Executor, opts Options) (*Base, error) {
	if exec == nil {
		return nil, fmt.Errorf("repository: executor is required")
	}

	dialect := opts.Dialect
	if dialect.Name == "" {
		d, ok := exec.(dialecter)
		if !ok {
			return nil, fmt.Errorf("repository %s: dialect is required", opts.Entity.Table)
		}
		dialect = d.Dialect()
	}

	queries, err := skeleton.NewEntityQueries(dialect, opts.Entity, opts.Strict)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}

	sort, err := normalizeSort(opts.DefaultSort, queries.Bindings().KeyParam)
	if err != nil {
		return nil, fmt.Errorf("repository %s: default sort: %w", opts.Entity.Table, err)
	}

	for _, col := range opts.SearchColumns {
		if !criteria.ValidIdentifier(col) {
			return nil, fmt.Errorf("repository %s: invalid search column %q", opts.Entity.Table, col)
		}
	}

	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NewNullLogger()
	}

	return &Base{
		exec:        exec,
		queries:     queries,
		defaultSort: sort,
		search:      slices.Clone(opts.SearchColumns),
		audit:       auditLog,
		logger:      opts.Logger.With().Str("table", opts.Entity.Table).Logger(),
	}, nil
}

func normalizeSort(s criteria.SortSpec, keyParam string) (criteria.SortSpec, error) {
	if s.Field == "" {
		s.Field = keyParam
	}
	res, err := criteria.TranslateBound(criteria.SearchCriteria{Sort: []criteria.SortSpec{s}}, criteria.SortSpec{})
	if err != nil {
		return criteria.SortSpec{}, err
	}
	return res.Sort, nil
}

// Table - таблица сущности
func (b *Base) Table() string {
	return b.queries.Bindings().Table
}

// Queries - скелеты сущности, для собственных запросов репозитория
func (b *Base) Queries() *skeleton.EntityQueries {
	return b.queries
}

// Criteria - WHERE фрагмент фильтров и поиска с аргументами, плюс сортировка
func (b *Base) Criteria(c criteria.SearchCriteria) (criteria.Result, error) {
	res, err := criteria.TranslateBound(c, b.defaultSort)
	if err != nil {
		return criteria.Result{}, err
	}

	clause, args, err := criteria.SearchClauseBound(c.Search, b.search...)
	if err != nil {
		return criteria.Result{}, err
	}
	res.Where += clause
	res.Args = append(res.Args, args...)

	return res, nil
}

// FindAll - все строки проекции, total в каждой строке
func (b *Base) FindAll(ctx context.Context) ([]adapters.Row, error) {
	stmt, err := b.queries.Build(skeleton.OpFindAll, nil)
	if err != nil {
		return nil, err
	}
	rows, err := b.exec.Execute(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s find all: %w", b.Table(), err)
	}
	return rows, nil
}

// Find - страница page (с 0) по limit различных ключей
func (b *Base) Find(ctx context.Context, page, limit int, c criteria.SearchCriteria) (Page, error) {
	start, end, err := skeleton.Window(page, limit)
	if err != nil {
		return Page{}, err
	}

	res, err := b.Criteria(c)
	if err != nil {
		return Page{}, fmt.Errorf("%s find: %w", b.Table(), err)
	}

	stmt, err := b.queries.Build(skeleton.OpFind, map[string]string{
		"DynamicWhereClause":      res.Where,
		"DynamicOrderByField":     res.Sort.Field,
		"DynamicOrderByDirection": string(res.Sort.Order),
		"start":                   strconv.Itoa(start),
		"end":                     strconv.Itoa(end),
	}, res.Args...)
	if err != nil {
		return Page{}, err
	}

	rows, err := b.exec.Execute(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return Page{}, fmt.Errorf("%s find: %w", b.Table(), err)
	}

	p := Page{Rows: rows}
	if len(rows) > 0 {
		p.Total = toInt64(rows[0]["total"])
	}
	return p, nil
}

// FindByID - строки проекции одной сущности (несколько при JOIN один-ко-многим)
func (b *Base) FindByID(ctx context.Context, id any) ([]adapters.Row, error) {
	stmt, err := b.queries.Build(skeleton.OpFindByID, map[string]string{"id": "?"}, id)
	if err != nil {
		return nil, err
	}

	rows, err := b.exec.Execute(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s find by id: %w", b.Table(), err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s id=%v: %w", b.Table(), id, ErrNotFound)
	}
	return rows, nil
}

// Create вставляет строку и возвращает ее id
// MySQL отдает last_insert_id, остальные диалекты - колонку id из RETURNING/OUTPUT.
func (b *Base) Create(ctx context.Context, values map[string]any, changedBy string) (any, error) {
	cols, args, err := split(values)
	if err != nil {
		return nil, fmt.Errorf("%s create: %w", b.Table(), err)
	}

	stmt, err := b.queries.Build(skeleton.OpCreate, map[string]string{
		"Fields": skeleton.Columns(cols),
		"Values": skeleton.Placeholders(len(cols)),
	}, args...)
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(audit.OpCreate, b.Table()).WithUser(changedBy).WithData(values)

	rows, err := b.exec.Execute(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		b.record(ctx, entry.WithError(err))
		return nil, fmt.Errorf("%s create: %w", b.Table(), err)
	}

	id := b.insertedID(rows)
	b.record(ctx, entry.WithRecord(id))
	return id, nil
}

func (b *Base) insertedID(rows []adapters.Row) any {
	if len(rows) == 0 {
		return nil
	}
	if id, ok := rows[0][b.queries.Bindings().IDField]; ok {
		return id
	}
	return rows[0][base.LastInsertIDKey]
}

// Update обновляет колонки values строки id
func (b *Base) Update(ctx context.Context, id any, values map[string]any, changedBy string) error {
	cols, args, err := split(values)
	if err != nil {
		return fmt.Errorf("%s update: %w", b.Table(), err)
	}

	stmt, err := b.queries.Build(skeleton.OpUpdate, map[string]string{
		"SetClause": skeleton.Assignments(cols),
		"id":        "?",
	}, append(args, id)...)
	if err != nil {
		return err
	}

	entry := audit.NewEntry(audit.OpUpdate, b.Table()).WithRecord(id).WithUser(changedBy).WithData(values)
	return b.mutate(ctx, stmt, entry)
}

// SoftDelete проставляет deleted_at
func (b *Base) SoftDelete(ctx context.Context, id any, changedBy string) error {
	stmt, err := b.queries.Build(skeleton.OpSoftDelete, map[string]string{"id": "?"}, id)
	if err != nil {
		return err
	}
	return b.mutate(ctx, stmt, audit.NewEntry(audit.OpSoftDelete, b.Table()).WithRecord(id).WithUser(changedBy))
}

// HardDelete удаляет строку
func (b *Base) HardDelete(ctx context.Context, id any, changedBy string) error {
	stmt, err := b.queries.Build(skeleton.OpHardDelete, map[string]string{"id": "?"}, id)
	if err != nil {
		return err
	}
	return b.mutate(ctx, stmt, audit.NewEntry(audit.OpHardDelete, b.Table()).WithRecord(id).WithUser(changedBy))
}

// mutate - UPDATE/DELETE по id; 0 затронутых строк = ErrNotFound
func (b *Base) mutate(ctx context.Context, stmt skeleton.Statement, entry *audit.Entry) error {
	rows, err := b.exec.Execute(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		b.record(ctx, entry.WithError(err))
		return fmt.Errorf("%s %s: %w", b.Table(), entry.Operation, err)
	}

	if len(rows) > 0 {
		if n, ok := rows[0][base.RowsAffectedKey]; ok && toInt64(n) == 0 {
			return fmt.Errorf("%s id=%s: %w", b.Table(), entry.RecordID, ErrNotFound)
		}
	}

	b.record(ctx, entry)
	return nil
}

// SaveLog - запись в журнал аудита
// Ошибка записи только логируется.
func (b *Base) SaveLog(ctx context.Context, action audit.Operation, table, description string) {
	b.record(ctx, audit.NewEntry(action, table).WithDescription(description))
}

func (b *Base) record(ctx context.Context, entry *audit.Entry) {
	if err := b.audit.Log(ctx, entry); err != nil {
		b.logger.Warn().
			Err(err).
			Str("operation", string(entry.Operation)).
			Str("record_id", entry.RecordID).
			Msg("audit log write failed")
	}
}

// split - колонки в стабильном порядке и значения к ним
func split(values map[string]any) ([]string, []any, error) {
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("no values")
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if !criteria.ValidIdentifier(col) {
			return nil, nil, fmt.Errorf("%w: invalid column %q", criteria.ErrEscaping, col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)

	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = values[col]
	}
	return cols, args, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	default:
		return 0
	}
}
