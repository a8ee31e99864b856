// Package base предоставляет общий исполнитель запросов для адаптеров на database/sql
//
// Runner используется адаптерами sqlite, mssql, mysql и libsql:
//   - Execute: SELECT/WITH/PRAGMA/... и запросы с RETURNING или OUTPUT INSERTED
//     идут через QueryContext и возвращают строки; остальное через ExecContext
//     и возвращает одну строку {"rows_affected", "last_insert_id"};
//   - BatchExecute: все statements в одной транзакции, откат при первой ошибке;
//   - значения колонок проходят через ValueConverter адаптера.
//
// Пример:
//
//	db, err := sql.Open("sqlite", dsn)
//	runner := base.NewRunner(db, "sqlite", nil)
//	rows, err := runner.Execute(ctx, "SELECT id, name FROM products WHERE id = ?", 1)
package base
