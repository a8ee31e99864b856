// Package sqltemplate подставляет фрагменты SQL в шаблоны с плейсхолдерами вида @Name.
//
// Подстановка строковая: без экранирования, без рекурсии. Экранирование значений
// и построение WHERE - забота pkg/core/criteria, здесь только склейка структуры запроса.
package sqltemplate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvedPlaceholder - после подстановки в запросе остались @-токены без значения
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// Substitute заменяет каждое вхождение токена @K в template на bindings[K]
//
// Токен - @ и следующее за ним максимальное имя [A-Za-z_][A-Za-z0-9_]*, поэтому
// ключ Table не задевает @TableName. Проход один: вставленные значения повторно
// не сканируются. Незадействованные ключи игнорируются, неразрешенные
// плейсхолдеры остаются как есть.
func Substitute(template string, bindings map[string]string) string {
	if len(bindings) == 0 {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '@' {
			b.WriteByte(c)
			continue
		}

		// @@NAME - системная переменная, копируем целиком
		if i+1 < len(template) && template[i+1] == '@' {
			j := i + 2
			for j < len(template) && isNameChar(template[j]) {
				j++
			}
			b.WriteString(template[i:j])
			i = j - 1
			continue
		}

		j := i + 1
		if j >= len(template) || !isNameStart(template[j]) {
			b.WriteByte(c)
			continue
		}
		for j < len(template) && isNameChar(template[j]) {
			j++
		}

		if value, ok := bindings[template[i+1:j]]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(template[i:j])
		}
		i = j - 1
	}

	return b.String()
}

// Unresolved возвращает @-токены, оставшиеся в sql после подстановки
//
// Литералы в одинарных кавычках и системные переменные @@NAME пропускаются:
// 'user@mail.com' в значении фильтра - не плейсхолдер.
func Unresolved(sql string) []string {
	var found []string
	seen := make(map[string]bool)

	inLiteral := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if c == '\'' {
			// '' внутри литерала - экранированная кавычка
			if inLiteral && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inLiteral = !inLiteral
			continue
		}
		if inLiteral || c != '@' {
			continue
		}

		if i+1 < len(sql) && sql[i+1] == '@' {
			i++
			for i+1 < len(sql) && isNameChar(sql[i+1]) {
				i++
			}
			continue
		}

		j := i + 1
		if j >= len(sql) || !isNameStart(sql[j]) {
			continue
		}
		for j < len(sql) && isNameChar(sql[j]) {
			j++
		}

		name := sql[i+1 : j]
		if !seen[name] {
			seen[name] = true
			found = append(found, name)
		}
		i = j - 1
	}

	return found
}

// Render выполняет Substitute и в strict режиме проверяет полноту подстановки
//
// strict включается в debug/test сборках. В обычном режиме неразрешенные
// плейсхолдеры проходят молча, как и раньше.
func Render(template string, bindings map[string]string, strict bool) (string, error) {
	sql := Substitute(template, bindings)
	if !strict {
		return sql, nil
	}

	if missing := Unresolved(sql); len(missing) > 0 {
		return sql, fmt.Errorf("%w: @%s", ErrUnresolvedPlaceholder, strings.Join(missing, ", @"))
	}
	return sql, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
