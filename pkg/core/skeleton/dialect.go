package skeleton

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// IDClause - способ вернуть id вставленной строки
type IDClause int

const (
	// IDReturning - INSERT ... VALUES (...) RETURNING id (SQLite, libSQL, PostgreSQL)
	IDReturning IDClause = iota

	// IDOutput - INSERT ... OUTPUT INSERTED.id VALUES (...) (MS SQL Server)
	IDOutput

	// IDLastInsert - обычный INSERT, id приходит как last_insert_id от драйвера (MySQL)
	IDLastInsert
)

// Dialect описывает различия SQL диалектов, влияющие на скелеты запросов
type Dialect struct {
	// Name - имя диалекта для логов и ошибок
	Name string

	// BindType - стиль плейсхолдеров параметров (sqlx.QUESTION, sqlx.DOLLAR, sqlx.AT)
	BindType int

	// ID - где и как вставляется id-returning clause
	ID IDClause
}

var (
	DialectMSSQL    = Dialect{Name: "mssql", BindType: sqlx.AT, ID: IDOutput}
	DialectPostgres = Dialect{Name: "postgres", BindType: sqlx.DOLLAR, ID: IDReturning}
	DialectSQLite   = Dialect{Name: "sqlite", BindType: sqlx.QUESTION, ID: IDReturning}
	DialectMySQL    = Dialect{Name: "mysql", BindType: sqlx.QUESTION, ID: IDLastInsert}
)

// DialectByName возвращает диалект по имени типа СУБД
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "mssql", "sqlserver":
		return DialectMSSQL, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "libsql":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown SQL dialect: %s", name)
	}
}

// Rebind переводит нейтральные ? в стиль плейсхолдеров диалекта
func (d Dialect) Rebind(sql string) string {
	return sqlx.Rebind(d.BindType, sql)
}

func (d Dialect) String() string {
	return d.Name
}
