package criteria

import (
	"fmt"
	"strings"
)

// Translate строит WHERE с литералами значений
//
// Сортировка: берется только первый элемент c.Sort, остальные игнорируются.
// Если c.Sort пуст, возвращается def без изменений.
// Search сюда не входит: колонки поиска у каждой сущности свои, см. SearchClause.
func Translate(c SearchCriteria, def SortSpec) (Result, error) {
	return newGenerator(false).translate(c, def)
}

// TranslateBound строит WHERE с нейтральными ? и списком аргументов
func TranslateBound(c SearchCriteria, def SortSpec) (Result, error) {
	return newGenerator(true).translate(c, def)
}

type generator struct {
	bound bool
	where strings.Builder
	args  []any
}

func newGenerator(bound bool) *generator {
	g := &generator{bound: bound}
	g.where.WriteString("1=1")
	return g
}

func (g *generator) translate(c SearchCriteria, def SortSpec) (Result, error) {
	for i, f := range c.Filters {
		if err := g.filter(f); err != nil {
			return Result{}, fmt.Errorf("filter %d (%s): %w", i, f.Field, err)
		}
	}

	sort, err := pickSort(c.Sort, def)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Where: g.where.String(),
		Args:  g.args,
		Sort:  sort,
	}, nil
}

func (g *generator) filter(f Filter) error {
	if !ValidIdentifier(f.Field) {
		return fmt.Errorf("%w: invalid field name %q", ErrEscaping, f.Field)
	}
	if strings.ContainsRune(f.Value, 0) {
		return fmt.Errorf("%w: NUL byte in value", ErrEscaping)
	}

	operator := strings.ToLower(strings.TrimSpace(f.Operator))

	switch operator {
	case OpIn:
		items, err := parseList(f.Value)
		if err != nil {
			return err
		}
		if g.bound {
			g.add("%s IN (%s)", f.Field, placeholders(len(items)))
			for _, item := range items {
				g.args = append(g.args, item)
			}
			return nil
		}
		// список уже в кавычках вызывающего: удвоение и обратная замена
		relaxed := strings.ReplaceAll(Escape(f.Value), "''", "'")
		g.add("%s IN %s", f.Field, strings.TrimSpace(relaxed))

	case OpBetween:
		parts := strings.Split(f.Value, ",")
		if len(parts) != 2 {
			return fmt.Errorf("%w: between expects \"start,end\", got %q", ErrEscaping, f.Value)
		}
		start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if g.bound {
			g.add("%s BETWEEN ? AND ?", f.Field)
			g.args = append(g.args, start, end)
			return nil
		}
		g.add("%s BETWEEN %s AND %s", f.Field, Quote(start), Quote(end))

	case OpLike:
		pattern := LikePattern(f.Value)
		if g.bound {
			g.add("%s LIKE ?", f.Field)
			g.args = append(g.args, pattern)
			return nil
		}
		g.add("%s LIKE %s", f.Field, Quote(pattern))

	case OpEq, OpLt, OpLte, OpGt, OpGte:
		if g.bound {
			g.add("%s %s ?", f.Field, operator)
			g.args = append(g.args, f.Value)
			return nil
		}
		g.add("%s %s %s", f.Field, operator, Quote(f.Value))

	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrEscaping, f.Operator)
	}

	return nil
}

func (g *generator) add(format string, a ...any) {
	g.where.WriteString(" AND ")
	fmt.Fprintf(&g.where, format, a...)
}

// LikePattern оборачивает значение в %...%, если вызывающий не поставил % сам
func LikePattern(value string) string {
	if strings.Contains(value, "%") {
		return value
	}
	return "%" + value + "%"
}

func pickSort(sort []SortSpec, def SortSpec) (SortSpec, error) {
	if len(sort) == 0 {
		return def, nil
	}

	// TODO: multi-column sort needs a ranking skeleton with a composite sort key
	s := sort[0]
	if !ValidIdentifier(s.Field) {
		return SortSpec{}, fmt.Errorf("%w: invalid sort field %q", ErrEscaping, s.Field)
	}

	switch Order(strings.ToUpper(strings.TrimSpace(string(s.Order)))) {
	case "", Asc:
		s.Order = Asc
	case Desc:
		s.Order = Desc
	default:
		return SortSpec{}, fmt.Errorf("%w: invalid sort order %q", ErrEscaping, s.Order)
	}

	return s, nil
}

// parseList разбирает "(1, 2, 'a''b')" в значения элементов
// Элемент - число или литерал в одинарных кавычках; иначе ErrEscaping.
func parseList(value string) ([]string, error) {
	v := strings.TrimSpace(value)
	if len(v) < 2 || v[0] != '(' || v[len(v)-1] != ')' {
		return nil, fmt.Errorf("%w: in expects a parenthesized list, got %q", ErrEscaping, value)
	}
	body := v[1 : len(v)-1]

	var items []string
	for i := 0; ; {
		for i < len(body) && body[i] == ' ' {
			i++
		}
		if i >= len(body) {
			return nil, fmt.Errorf("%w: empty element in list %q", ErrEscaping, value)
		}

		var item string
		if body[i] == '\'' {
			var b strings.Builder
			i++
			closed := false
			for i < len(body) {
				if body[i] == '\'' {
					if i+1 < len(body) && body[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(body[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated literal in list %q", ErrEscaping, value)
			}
			item = b.String()
		} else {
			j := i
			for j < len(body) && body[j] != ',' && body[j] != ' ' {
				j++
			}
			item = body[i:j]
			if !isNumber(item) {
				return nil, fmt.Errorf("%w: list element %q is neither number nor quoted literal", ErrEscaping, item)
			}
			i = j
		}
		items = append(items, item)

		for i < len(body) && body[i] == ' ' {
			i++
		}
		if i >= len(body) {
			return items, nil
		}
		if body[i] != ',' {
			return nil, fmt.Errorf("%w: unexpected %q in list %q", ErrEscaping, body[i], value)
		}
		i++
	}
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	dot := false
	for i, c := range s {
		switch {
		case c == '-' && i == 0:
		case c == '.' && !dot:
			dot = true
		case c >= '0' && c <= '9':
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
