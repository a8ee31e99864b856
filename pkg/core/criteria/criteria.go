// Package criteria переводит декларативное описание фильтра/сортировки
// в WHERE фрагмент для skeleton.Find.
//
// Два режима:
//   - Translate: значения вписываются в SQL литералами с удвоением кавычек;
//   - TranslateBound: значения уходят параметрами (?), в SQL только структура.
package criteria

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEscaping - значение фильтра, поиска или сортировки нельзя безопасно вставить в SQL
var ErrEscaping = errors.New("escaping failed")

// Операторы фильтра
const (
	OpEq      = "="
	OpLt      = "<"
	OpLte     = "<="
	OpGt      = ">"
	OpGte     = ">="
	OpLike    = "like"
	OpIn      = "in"
	OpBetween = "between"
)

// Order - направление сортировки
type Order string

const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// Filter - одно условие фильтра
type Filter struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value" yaml:"value"`
}

// SortSpec - поле и направление сортировки
type SortSpec struct {
	Field string `json:"field" yaml:"field"`
	Order Order  `json:"order" yaml:"order"`
}

// SearchCriteria - фильтры, строка свободного поиска и сортировка запроса
type SearchCriteria struct {
	Filters []Filter   `json:"filters" yaml:"filters"`
	Search  string     `json:"search" yaml:"search"`
	Sort    []SortSpec `json:"sort" yaml:"sort"`
}

// Result - результат трансляции
type Result struct {
	// Where начинается с "1=1", каждое условие добавляется через " AND "
	Where string

	// Args - значения для ? в Where (только TranslateBound)
	Args []any

	// Sort - первая сортировка из критериев или сортировка по умолчанию
	Sort SortSpec
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier проверяет что имя поля - простой идентификатор или alias.column
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// Escape удваивает одинарные кавычки
func Escape(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// Quote - Escape и обрамление в одинарные кавычки
func Quote(value string) string {
	return "'" + Escape(value) + "'"
}
