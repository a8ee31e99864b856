package audit

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Level - уровень детализации записи
type Level int

const (
	// LevelStandard - без сырых данных (значение по умолчанию)
	LevelStandard Level = iota

	// LevelMinimal - только основная информация
	LevelMinimal

	// LevelFull - включая значения полей мутации
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel - уровень из строки конфигурации
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "standard":
		return LevelStandard, nil
	case "minimal":
		return LevelMinimal, nil
	case "full":
		return LevelFull, nil
	default:
		return LevelStandard, fmt.Errorf("unknown audit level %q", s)
	}
}

// Operation - тип мутации
type Operation string

const (
	OpCreate     Operation = "create"
	OpUpdate     Operation = "update"
	OpSoftDelete Operation = "soft_delete"
	OpHardDelete Operation = "hard_delete"
	OpBatch      Operation = "batch"
)

// Status - результат операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry - запись журнала аудита
type Entry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Operation   Operation      `json:"operation"`
	Status      Status         `json:"status"`
	Table       string         `json:"table"`
	RecordID    string         `json:"record_id,omitempty"`
	ChangedBy   string         `json:"changed_by,omitempty"`
	Description string         `json:"description,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Data - значения полей (только для LevelFull)
	Data map[string]any `json:"data,omitempty"`
}

// NewEntry - создать новую запись
func NewEntry(operation Operation, table string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Status:    StatusSuccess,
		Table:     table,
	}
}

// WithRecord - установить id записи
func (e *Entry) WithRecord(id any) *Entry {
	if id != nil {
		e.RecordID = fmt.Sprint(id)
	}
	return e
}

// WithUser - установить автора изменения
func (e *Entry) WithUser(user string) *Entry {
	e.ChangedBy = user
	return e
}

// WithDescription - установить описание
func (e *Entry) WithDescription(description string) *Entry {
	e.Description = description
	return e
}

// WithError - пометить запись как неудачную
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.Error = err.Error()
		e.Status = StatusFailure
	}
	return e
}

// WithMetadata - добавить метаданные
func (e *Entry) WithMetadata(key string, value any) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// WithData - значения полей мутации
func (e *Entry) WithData(data map[string]any) *Entry {
	e.Data = data
	return e
}

// Summary - текст для колонки change_description
func (e *Entry) Summary() string {
	if e.Description != "" {
		return e.Description
	}
	if e.RecordID != "" {
		return fmt.Sprintf("%s %s id=%s", e.Operation, e.Table, e.RecordID)
	}
	return fmt.Sprintf("%s %s", e.Operation, e.Table)
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление
func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s %s %s by=%s (%s)",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Table,
		e.Status,
		e.ChangedBy,
		e.Summary(),
	)
}

// Clone - создать копию записи
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Metadata = maps.Clone(e.Metadata)
	clone.Data = maps.Clone(e.Data)
	return &clone
}

// FilterByLevel - копия записи без полей, лишних для уровня
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Metadata = nil
		filtered.Data = nil
	case LevelStandard:
		filtered.Data = nil
	}

	return filtered
}
