package base

import (
	"strings"
	"time"
)

// ValueConverter приводит значение, прочитанное драйвером, к виду для adapters.Row
// columnType - DatabaseTypeName колонки в верхнем регистре ("VARCHAR", "BLOB", ...),
// может быть пустым если драйвер его не сообщает.
type ValueConverter func(columnType string, value any) any

// binaryTypes - типы колонок, значения которых остаются []byte
var binaryTypes = map[string]bool{
	"BLOB":       true,
	"BINARY":     true,
	"VARBINARY":  true,
	"BYTEA":      true,
	"IMAGE":      true,
	"LONGBLOB":   true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
}

// IsBinaryType проверяет, бинарный ли тип колонки
func IsBinaryType(columnType string) bool {
	return binaryTypes[strings.ToUpper(columnType)]
}

// ConvertValue - конвертер по умолчанию для SQLite, MySQL и libSQL
//
//   - []byte текстовых колонок → string (MySQL отдает VARCHAR/DECIMAL байтами)
//   - []byte бинарных колонок остается как есть
//   - time.Time приводится к UTC
//   - остальное без изменений
func ConvertValue(columnType string, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if IsBinaryType(columnType) {
			out := make([]byte, len(v))
			copy(out, v)
			return out
		}
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}
