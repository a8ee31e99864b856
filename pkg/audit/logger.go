package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/metrics"
)

// ErrLoggerClosed - запись после Close
var ErrLoggerClosed = errors.New("audit logger is closed")

// Logger - основной интерфейс для аудита
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Flush() error
	Close() error
}

// LoggerConfig - конфигурация логгера
type LoggerConfig struct {
	// AsyncMode - запись в appenders в фоновой горутине
	AsyncMode bool

	// BufferSize - размер буфера для асинхронного режима
	BufferSize int

	// DefaultUser - автор изменения, если не указан в entry
	DefaultUser string

	// FlushInterval - интервал автоматического flush (0 = отключен)
	FlushInterval time.Duration

	// WriteTimeout - дедлайн записи одной entry во все appenders в фоне
	WriteTimeout time.Duration

	// OnError - callback при ошибке записи
	OnError func(error)
}

// DefaultConfig - асинхронный режим с буфером на 1000 записей
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		AsyncMode:    true,
		BufferSize:   1000,
		WriteTimeout: 10 * time.Second,
	}
}

// SyncConfig - конфигурация для синхронного режима
func SyncConfig() LoggerConfig {
	return LoggerConfig{
		WriteTimeout: 10 * time.Second,
	}
}

// AuditLogger - логгер аудита с fan-out по appenders
type AuditLogger struct {
	appenders []Appender
	config    LoggerConfig
	logger    zerolog.Logger

	entries chan *Entry
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLogger - создать новый audit logger
func NewLogger(config LoggerConfig, logger zerolog.Logger, appenders ...Appender) *AuditLogger {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	l := &AuditLogger{
		appenders: appenders,
		config:    config,
		logger:    logger,
		done:      make(chan struct{}),
	}

	if config.AsyncMode {
		l.entries = make(chan *Entry, config.BufferSize)
		l.wg.Add(1)
		go l.processEntries()
	}

	if config.FlushInterval > 0 {
		l.wg.Add(1)
		go l.autoFlush()
	}

	return l
}

// Log - записать audit entry
//
// В асинхронном режиме запись ставится в очередь; при переполнении буфера
// выполняется синхронно.
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ChangedBy == "" {
		entry.ChangedBy = l.config.DefaultUser
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoggerClosed
	}

	if l.config.AsyncMode {
		select {
		case l.entries <- entry:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			l.logger.Warn().Str("table", entry.Table).Msg("audit buffer full, writing synchronously")
		}
	}

	return l.writeEntry(ctx, entry)
}

// writeEntry - записать entry во все appenders
func (l *AuditLogger) writeEntry(ctx context.Context, entry *Entry) error {
	var firstError error

	for _, appender := range l.appenders {
		if err := appender.Append(ctx, entry); err != nil {
			name := appenderName(appender)
			metrics.RecordAuditFailure(name)
			l.handleError(fmt.Errorf("audit appender %s: %w", name, err))
			if firstError == nil {
				firstError = err
			}
		}
	}

	return firstError
}

func (l *AuditLogger) writeBackground(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
	defer cancel()
	l.writeEntry(ctx, entry)
}

// processEntries - обработка entries в асинхронном режиме
func (l *AuditLogger) processEntries() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.entries:
			l.writeBackground(entry)

		case <-l.done:
			// дописываем то, что осталось в буфере
			for {
				select {
				case entry := <-l.entries:
					l.writeBackground(entry)
				default:
					return
				}
			}
		}
	}
}

// autoFlush - периодический flush appenders
func (l *AuditLogger) autoFlush() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.done:
			return
		}
	}
}

// Flush - сбросить буферы appenders, которые это умеют
func (l *AuditLogger) Flush() error {
	var firstError error

	for _, appender := range l.appenders {
		flusher, ok := appender.(interface{ Flush() error })
		if !ok {
			continue
		}
		if err := flusher.Flush(); err != nil {
			l.handleError(fmt.Errorf("flush %s: %w", appenderName(appender), err))
			if firstError == nil {
				firstError = err
			}
		}
	}

	return firstError
}

// Close - дописать очередь и закрыть appenders
// Повторный Close ничего не делает.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()
	l.Flush()

	var firstError error
	for _, appender := range l.appenders {
		if err := appender.Close(); err != nil {
			l.handleError(fmt.Errorf("close %s: %w", appenderName(appender), err))
			if firstError == nil {
				firstError = err
			}
		}
	}

	return firstError
}

// handleError - ошибки аудита не поднимаются выше, только логируются
func (l *AuditLogger) handleError(err error) {
	l.logger.Error().Err(err).Msg("audit write failed")
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
}

// NullLogger - пустой logger
type NullLogger struct{}

func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

func (nl *NullLogger) Log(ctx context.Context, entry *Entry) error {
	return nil
}

func (nl *NullLogger) Flush() error {
	return nil
}

func (nl *NullLogger) Close() error {
	return nil
}
