package criteria

import (
	"fmt"
	"strings"
)

// SearchClause - фрагмент свободного поиска по колонкам сущности (литеральный режим)
//
//	AND (name LIKE '%milk%' OR description LIKE '%milk%')
//
// Пустой search дает пустую строку.
func SearchClause(search string, columns ...string) (string, error) {
	clause, _, err := searchClause(search, columns, false)
	return clause, err
}

// SearchClauseBound - то же с ? и аргументами (по одному на колонку)
func SearchClauseBound(search string, columns ...string) (string, []any, error) {
	return searchClause(search, columns, true)
}

func searchClause(search string, columns []string, bound bool) (string, []any, error) {
	if search == "" || len(columns) == 0 {
		return "", nil, nil
	}
	if strings.ContainsRune(search, 0) {
		return "", nil, fmt.Errorf("%w: NUL byte in search", ErrEscaping)
	}

	pattern := "%" + search + "%"
	parts := make([]string, len(columns))
	var args []any

	for i, col := range columns {
		if !ValidIdentifier(col) {
			return "", nil, fmt.Errorf("%w: invalid search column %q", ErrEscaping, col)
		}
		if bound {
			parts[i] = col + " LIKE ?"
			args = append(args, pattern)
		} else {
			parts[i] = col + " LIKE " + Quote(pattern)
		}
	}

	return " AND (" + strings.Join(parts, " OR ") + ")", args, nil
}
