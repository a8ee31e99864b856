package audit

import (
	"context"
	"errors"
	"strings"
)

// Appender - получатель audit entries (таблица logs, файл, Redis, брокер)
// Append вызывается из одной горутины логгера; Close - один раз.
type Appender interface {
	Append(ctx context.Context, entry *Entry) error
	Close() error
}

// Named - имя appender'а в метриках и логах
type Named interface {
	Name() string
}

func appenderName(a Appender) string {
	if n, ok := a.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// MultiAppender раздает entry всем вложенным appenders
// Ошибки собираются через errors.Join, сбой одного не останавливает остальных.
type MultiAppender struct {
	appenders []Appender
}

func NewMultiAppender(appenders ...Appender) *MultiAppender {
	return &MultiAppender{appenders: appenders}
}

func (ma *MultiAppender) Add(a Appender) {
	ma.appenders = append(ma.appenders, a)
}

func (ma *MultiAppender) Append(ctx context.Context, entry *Entry) error {
	errs := make([]error, 0, len(ma.appenders))
	for _, a := range ma.appenders {
		errs = append(errs, a.Append(ctx, entry))
	}
	return errors.Join(errs...)
}

func (ma *MultiAppender) Close() error {
	errs := make([]error, 0, len(ma.appenders))
	for _, a := range ma.appenders {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}

// Name - "multi(sql,file)"
func (ma *MultiAppender) Name() string {
	names := make([]string, len(ma.appenders))
	for i, a := range ma.appenders {
		names[i] = appenderName(a)
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// NullAppender отбрасывает entries
type NullAppender struct{}

func NewNullAppender() NullAppender { return NullAppender{} }

func (NullAppender) Append(context.Context, *Entry) error { return nil }
func (NullAppender) Close() error                         { return nil }
func (NullAppender) Name() string                         { return "null" }
