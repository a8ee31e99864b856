package adapters

import "strings"

// Имена типов СУБД, под которыми адаптеры регистрируются в фабрике
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMSSQL    = "mssql"
	TypeMySQL    = "mysql"
	TypeLibSQL   = "libsql"
)

// NormalizeType приводит синонимы типа СУБД к каноническому имени
// "postgresql" → "postgres", "sqlserver" → "mssql", "turso" → "libsql"
func NormalizeType(dbType string) string {
	switch t := strings.ToLower(strings.TrimSpace(dbType)); t {
	case "postgresql", "pg", "pgx":
		return TypePostgres
	case "sqlserver":
		return TypeMSSQL
	case "sqlite3":
		return TypeSQLite
	case "turso":
		return TypeLibSQL
	default:
		return t
	}
}
