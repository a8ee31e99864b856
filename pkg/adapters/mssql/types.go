package mssql

import (
	"strings"

	mssqldb "github.com/denisenkom/go-mssqldb"

	"github.com/ruslano69/datacore/pkg/adapters/base"
)

// convertValue maps go-mssqldb values to row values.
//
// UNIQUEIDENTIFIER arrives as 16 bytes in SQL Server's mixed-endian layout,
// rowversion as 8 big-endian bytes; both become strings.
func convertValue(columnType string, value any) any {
	b, ok := value.([]byte)
	if !ok {
		return base.ConvertValue(columnType, value)
	}

	switch strings.ToUpper(columnType) {
	case "UNIQUEIDENTIFIER":
		var u mssqldb.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return base.ConvertValue(columnType, value)
		}
		return u.String()
	case "TIMESTAMP", "ROWVERSION":
		return bytesToHexWithoutLeadingZerosSQL(b)
	default:
		return base.ConvertValue(columnType, value)
	}
}
