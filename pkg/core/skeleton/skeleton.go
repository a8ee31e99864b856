// Package skeleton содержит неизменяемые SQL шаблоны для CRUD операций
// и их экземпляры для конкретных сущностей.
//
// Скелет заполняется в два этапа:
//
//  1. при старте: NewEntityQueries подставляет таблицы, поля, JOIN-ы сущности;
//  2. на запрос: EntityQueries.Build подставляет @id, @DynamicWhereClause,
//     границы страницы и переводит ? в стиль плейсхолдеров диалекта.
package skeleton

import "fmt"

// Operation - тип CRUD операции
type Operation int

const (
	OpFindAll Operation = iota
	OpFind
	OpFindByID
	OpCreate
	OpUpdate
	OpSoftDelete
	OpHardDelete
	OpCreateLog
)

// Operations - все операции в порядке объявления
var Operations = []Operation{
	OpFindAll, OpFind, OpFindByID, OpCreate, OpUpdate, OpSoftDelete, OpHardDelete, OpCreateLog,
}

// String - строковое представление операции
func (o Operation) String() string {
	switch o {
	case OpFindAll:
		return "find_all"
	case OpFind:
		return "find"
	case OpFindByID:
		return "find_by_id"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpSoftDelete:
		return "soft_delete"
	case OpHardDelete:
		return "hard_delete"
	case OpCreateLog:
		return "create_log"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// FindAll - все строки проекции и число различных ключей в колонке total
const FindAll = `WITH DistinctKeys AS (
	SELECT DISTINCT @KeyColumn AS item_key
	FROM @SelectTables
	WHERE @Scope
)
SELECT @SelectFields, (SELECT COUNT(*) FROM DistinctKeys) AS total
FROM @SelectTables
WHERE @Scope`

// Find - страница с фильтром и сортировкой.
//
// Ранжируются различные ключи, а не строки проекции: у продукта с тремя тегами
// три строки, но одно место на странице. Каждый ключ получает одну позицию
// (MIN поля сортировки), затем полная проекция присоединяется обратно.
// @KeyParam, @DynamicOrderByField и поля в @DynamicWhereClause - имена колонок AliasItems.
// @DynamicSortKey Build выводит из @DynamicOrderByField.
const Find = `WITH AliasItems AS (
	SELECT @SelectFields
	FROM @IncludedItemsTable
	WHERE @Scope
),
FilteredItems AS (
	SELECT * FROM AliasItems
	WHERE @DynamicWhereClause
),
IncludedItems AS (
	SELECT item_key, ROW_NUMBER() OVER (ORDER BY sort_key @DynamicOrderByDirection, item_key) AS rn
	FROM (
		SELECT @KeyParam AS item_key, @DynamicSortKey AS sort_key
		FROM FilteredItems
		GROUP BY @KeyParam
	) ranked
),
FilteredRows AS (
	SELECT item_key, rn FROM IncludedItems
	WHERE rn BETWEEN @start AND @end
)
SELECT AliasItems.*, FilteredRows.rn AS page_rank, (SELECT COUNT(DISTINCT @KeyParam) FROM FilteredItems) AS total
FROM AliasItems
INNER JOIN FilteredRows ON @FilterJoins
ORDER BY FilteredRows.rn`

// FindByID - проекция одной сущности
const FindByID = `SELECT @SelectFields
FROM @SelectTables
WHERE @SelectId = @id AND @Scope`

const (
	createReturning  = `INSERT INTO @Table (@Fields) VALUES (@Values) RETURNING @IdField`
	createOutput     = `INSERT INTO @Table (@Fields) OUTPUT INSERTED.@IdField VALUES (@Values)`
	createLastInsert = `INSERT INTO @Table (@Fields) VALUES (@Values)`
)

// Update - обновление по id
const Update = `UPDATE @Table SET @SetClause WHERE @IdField = @id`

// SoftDelete - пометка deleted_at вместо удаления строки
const SoftDelete = `UPDATE @Table SET deleted_at = CURRENT_TIMESTAMP WHERE @IdField = @id`

// HardDelete - физическое удаление по id
const HardDelete = `DELETE FROM @Table WHERE @IdField = @id`

// CreateLog - запись в журнал аудита
const CreateLog = `INSERT INTO @LogTable (table_name, changed_by, change_description) VALUES (@TableName, @ChangedBy, @ChangeDescription)`

// Set - набор скелетов одного диалекта
type Set map[Operation]string

// SetFor возвращает скелеты для диалекта
// Отличается только Create: позиция id-returning clause зависит от СУБД.
func SetFor(d Dialect) Set {
	create := createReturning
	switch d.ID {
	case IDOutput:
		create = createOutput
	case IDLastInsert:
		create = createLastInsert
	}

	return Set{
		OpFindAll:    FindAll,
		OpFind:       Find,
		OpFindByID:   FindByID,
		OpCreate:     create,
		OpUpdate:     Update,
		OpSoftDelete: SoftDelete,
		OpHardDelete: HardDelete,
		OpCreateLog:  CreateLog,
	}
}
