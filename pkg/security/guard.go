package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Ошибки проверки запроса
var (
	ErrNotReadOnly        = errors.New("statement is not read-only")
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
	ErrComment            = errors.New("sql comments are not allowed")
)

// writeKeywords - слова, недопустимые в read-only запросе
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "TRUNCATE": true, "MERGE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "RENAME": true,
	"GRANT": true, "REVOKE": true,
	"EXEC": true, "EXECUTE": true, "CALL": true,
	"PRAGMA": true, "ATTACH": true, "DETACH": true, "VACUUM": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true,
	"INTO": true, // SELECT ... INTO
}

// Guard пропускает только одиночные SELECT/WITH запросы
//
// Выключенный Guard (Unsafe) пропускает всё; включать Unsafe может только
// администратор, это проверяет вызывающий код через IsAdmin.
type Guard struct {
	Unsafe bool
}

// Check возвращает nil, если запрос разрешен
func (g Guard) Check(sql string) error {
	if g.Unsafe {
		return nil
	}

	trimmed := strings.TrimSpace(sql)
	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") || strings.Contains(trimmed, "*/") {
		return ErrComment
	}

	// одна завершающая ; допустима
	body := strings.TrimSuffix(trimmed, ";")
	if strings.Contains(body, ";") {
		return ErrMultipleStatements
	}

	words := keywords(body)
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if words[0] != "SELECT" && words[0] != "WITH" {
		return fmt.Errorf("%w: %s", ErrNotReadOnly, words[0])
	}
	for _, w := range words[1:] {
		if writeKeywords[w] {
			return fmt.Errorf("%w: forbidden keyword %s", ErrNotReadOnly, w)
		}
	}
	return nil
}

// keywords разбивает запрос на слова в верхнем регистре, пропуская строковые литералы
// Идентификаторы вроде deleted_at остаются одним словом и не совпадают с DELETE.
func keywords(sql string) []string {
	var (
		words   []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToUpper(current.String()))
			current.Reset()
		}
	}

	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			flush()
			quote = r
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return words
}
