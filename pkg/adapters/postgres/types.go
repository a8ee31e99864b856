package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// convertValue приводит значения pgx к виду для adapters.Row
//
//   - uuid ([16]byte) → "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
//   - NUMERIC → строка без потери точности, NULL → nil
//   - timestamp → UTC
//   - JSON/JSONB уже декодированы pgx в map/slice и остаются как есть
func convertValue(value any) any {
	switch v := value.(type) {
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		s, err := v.Value()
		if err != nil {
			return nil
		}
		return s
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}
