package connection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/ruslano69/datacore/pkg/adapters"
)

var (
	// ErrConnectionUnavailable - запрос пришел, пока подключения нет
	// Переподключение при этом уже запланировано.
	ErrConnectionUnavailable = errors.New("database connection unavailable")

	// ErrClosed - менеджер закрыт
	ErrClosed = errors.New("connection manager is closed")
)

const redacted = "[redacted]"

// QueryError - ошибка выполнения запроса драйвером
//
// Вне debug режима SQL и Params скрыты; Fingerprint (xxh3 от текста
// запроса) сохраняется всегда, чтобы сопоставлять ошибку с логами.
type QueryError struct {
	Backend     string
	Kind        adapters.Kind
	SQL         string
	Params      []any
	Fingerprint string
	Err         error
}

func newQueryError(a adapters.Adapter, sql string, params []any, debug bool, err error) *QueryError {
	qe := &QueryError{
		Backend:     a.GetDatabaseType(),
		Kind:        a.Kind(),
		SQL:         sql,
		Params:      params,
		Fingerprint: Fingerprint(sql),
		Err:         err,
	}
	if !debug {
		qe.SQL = redacted
		qe.Params = nil
	}
	return qe
}

func (e *QueryError) Error() string {
	if e.SQL != redacted && e.SQL != "" {
		return fmt.Sprintf("%s query %s failed: %v [sql: %s, params: %v]", e.Backend, e.Fingerprint, e.Err, e.SQL, e.Params)
	}
	return fmt.Sprintf("%s query %s failed: %v", e.Backend, e.Fingerprint, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Fingerprint - короткий стабильный идентификатор текста запроса
func Fingerprint(sql string) string {
	return strconv.FormatUint(xxh3.HashString(sql), 16)
}
