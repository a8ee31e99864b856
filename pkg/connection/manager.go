package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datacore/pkg/adapters"
	"github.com/ruslano69/datacore/pkg/core/skeleton"
	"github.com/ruslano69/datacore/pkg/metrics"
	"github.com/ruslano69/datacore/pkg/retry"
)

// Options - параметры жизненного цикла подключения
type Options struct {
	// PingInterval - период ping loop (по умолчанию 5 минут)
	PingInterval time.Duration

	// PingTimeout - дедлайн одного ping (по умолчанию 5 секунд)
	PingTimeout time.Duration

	// ConnectTimeout - дедлайн попытки подключения из reconnect loop
	ConnectTimeout time.Duration

	// QueryTimeout - дедлайн одного Execute/BatchExecute (по умолчанию 30 секунд)
	QueryTimeout time.Duration

	// Reconnect - задержки reconnect loop (по умолчанию постоянные 10 секунд)
	Reconnect retry.Config
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		PingInterval:   5 * time.Minute,
		PingTimeout:    5 * time.Second,
		ConnectTimeout: 30 * time.Second,
		QueryTimeout:   30 * time.Second,
		Reconnect:      retry.ReconnectConfig(),
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = d.QueryTimeout
	}
	if o.Reconnect.InitialDelay <= 0 {
		o.Reconnect = d.Reconnect
	}
}

// Stats - счетчики менеджера для health эндпоинтов
type Stats struct {
	Backend             string    `json:"backend"`
	Kind                string    `json:"kind"`
	State               string    `json:"state"`
	ReconnectPending    bool      `json:"reconnect_pending"`
	ReconnectsScheduled int64     `json:"reconnects_scheduled"`
	PingFailures        int64     `json:"ping_failures"`
	Queries             int64     `json:"queries"`
	QueryFailures       int64     `json:"query_failures"`
	ConnectedSince      time.Time `json:"connected_since,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Manager владеет единственным подключением к одной СУБД
//
// Порядок блокировок: mu, затем handleMu. Внутри handleMu mu не берется.
// Execute держит handleMu на чтение все время обращения к драйверу,
// поэтому разрыв подключения по ping ждет завершения запросов.
type Manager struct {
	adapter adapters.Adapter
	cfg     adapters.Config
	opts    Options
	backoff *retry.Backoff
	logger  zerolog.Logger

	// connectMu сериализует попытки подключения
	connectMu sync.Mutex

	mu             sync.Mutex
	state          State
	pingTimer      *time.Timer
	reconnectTimer *time.Timer
	attempt        int
	connectedSince time.Time
	lastErr        string

	handleMu sync.RWMutex
	// generation - номер текущего handle драйвера; меняется только под handleMu.Lock
	generation atomic.Uint64

	reconnects    atomic.Int64
	pingFailures  atomic.Int64
	queries       atomic.Int64
	queryFailures atomic.Int64
}

// New создает менеджер поверх неподключенного адаптера
func New(adapter adapters.Adapter, cfg adapters.Config, opts Options, logger zerolog.Logger) (*Manager, error) {
	if adapter == nil {
		return nil, fmt.Errorf("adapter is nil")
	}
	opts.applyDefaults()

	backoff, err := retry.NewBackoff(opts.Reconnect)
	if err != nil {
		return nil, fmt.Errorf("reconnect backoff: %w", err)
	}

	m := &Manager{
		adapter: adapter,
		cfg:     cfg,
		opts:    opts,
		backoff: backoff,
		logger: logger.With().
			Str("backend", adapter.GetDatabaseType()).
			Str("kind", string(adapter.Kind())).
			Logger(),
	}
	metrics.SetConnectionState(m.backend(), int(StateDisconnected))
	return m, nil
}

// NewFromConfig выбирает адаптер по cfg.Type через фабрику
func NewFromConfig(cfg adapters.Config, opts Options, logger zerolog.Logger) (*Manager, error) {
	adapter, err := adapters.NewWithoutConnect(cfg.Type)
	if err != nil {
		return nil, err
	}
	return New(adapter, cfg, opts, logger)
}

func (m *Manager) backend() string {
	return m.adapter.GetDatabaseType()
}

// Dialect возвращает SQL диалект подключенной СУБД
func (m *Manager) Dialect() skeleton.Dialect {
	return m.adapter.Dialect()
}

// Backend возвращает тип СУБД
func (m *Manager) Backend() string {
	return m.backend()
}

// Debug - показывать ли SQL в ошибках
func (m *Manager) Debug() bool {
	return m.cfg.Debug
}

// State возвращает текущее состояние
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats возвращает снимок счетчиков
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Backend:             m.backend(),
		Kind:                string(m.adapter.Kind()),
		State:               m.state.String(),
		ReconnectPending:    m.reconnectTimer != nil,
		ReconnectsScheduled: m.reconnects.Load(),
		PingFailures:        m.pingFailures.Load(),
		Queries:             m.queries.Load(),
		QueryFailures:       m.queryFailures.Load(),
		ConnectedSince:      m.connectedSince,
		LastError:           m.lastErr,
	}
}

// setStateLocked меняет состояние; вызывается под mu
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("connection state")
	m.state = s
	metrics.SetConnectionState(m.backend(), int(s))
}

// Connect подключается к СУБД
//
// При успехе запускается ping loop. При неудаче планируется reconnect loop,
// а ошибка возвращается вызывающему.
func (m *Manager) Connect(ctx context.Context) error {
	return m.connect(ctx, StateConnecting)
}

func (m *Manager) connect(ctx context.Context, via State) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(via)
	m.mu.Unlock()

	m.handleMu.Lock()
	err := m.adapter.Connect(ctx, m.cfg)
	if err == nil {
		m.generation.Add(1)
	}
	m.handleMu.Unlock()

	m.mu.Lock()
	if m.state == StateClosed {
		if err == nil {
			m.releaseAsync()
		}
		m.mu.Unlock()
		return ErrClosed
	}

	if err != nil {
		m.lastErr = err.Error()
		m.setStateLocked(StateDisconnected)
		m.logger.Error().Err(err).Int("attempt", m.attempt).Msg("connect failed")
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", m.backend(), err)
	}

	m.stopReconnectLocked()
	m.attempt = 0
	m.connectedSince = time.Now().UTC()
	m.setStateLocked(StateConnected)
	m.schedulePingLocked()
	m.mu.Unlock()

	m.logger.Info().Msg("connected")
	m.logVersion(ctx)
	return nil
}

// releaseAsync закрывает подключение, открытое уже после Close менеджера
func (m *Manager) releaseAsync() {
	go func() {
		m.handleMu.Lock()
		defer m.handleMu.Unlock()
		if err := m.adapter.Close(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("close after shutdown failed")
		}
	}()
}

func (m *Manager) logVersion(ctx context.Context) {
	v, ok := m.adapter.(adapters.Versioner)
	if !ok {
		return
	}

	release, err := m.acquire()
	if err != nil {
		return
	}
	version, err := v.GetDatabaseVersion(ctx)
	release()
	if err != nil {
		m.logger.Debug().Err(err).Msg("version unavailable")
		return
	}
	m.logger.Info().Str("version", version).Msg("server version")
}

// schedulePingLocked ставит следующий тик ping loop (не более одного таймера)
func (m *Manager) schedulePingLocked() {
	if m.pingTimer != nil {
		return
	}
	m.pingTimer = time.AfterFunc(m.opts.PingInterval, m.pingTick)
}

func (m *Manager) stopPingLocked() {
	if m.pingTimer != nil {
		m.pingTimer.Stop()
		m.pingTimer = nil
	}
}

// scheduleReconnectLocked планирует одну попытку переподключения
//
// Повторный вызов при уже запланированном таймере ничего не делает;
// во время Connect/Reconnect попытка и так идет.
func (m *Manager) scheduleReconnectLocked() {
	if m.state != StateDisconnected || m.reconnectTimer != nil {
		return
	}

	m.attempt++
	delay := m.backoff.Delay(m.attempt)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectTick)
	m.reconnects.Add(1)
	metrics.RecordReconnectScheduled(m.backend())

	m.logger.Warn().Int("attempt", m.attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) pingTick() {
	m.mu.Lock()
	m.pingTimer = nil
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.handleMu.RLock()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PingTimeout)
	err := m.adapter.Ping(ctx)
	cancel()
	m.handleMu.RUnlock()

	if err != nil {
		m.pingFailures.Add(1)
		metrics.RecordPingFailure(m.backend())
		m.logger.Error().Err(err).Msg("ping failed")
		m.handleConnectionError(err)
		return
	}

	m.mu.Lock()
	if m.state == StateConnected {
		m.schedulePingLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) reconnectTick() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()

	// ошибка уже залогирована, следующая попытка запланирована в connect
	_ = m.connect(ctx, StateReconnecting)
}

// handleConnectionError разрывает подключение и планирует переподключение
//
// Повторный вызов до восстановления ничего не делает.
func (m *Manager) handleConnectionError(cause error) {
	gen, ok := m.markFailed(cause)
	if !ok {
		return
	}
	m.teardown(gen)
}

// markFailed переводит Connected в Disconnected
// Возвращает поколение handle, который нужно закрыть.
func (m *Manager) markFailed(cause error) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return 0, false
	}
	m.lastErr = cause.Error()
	m.connectedSince = time.Time{}
	m.setStateLocked(StateDisconnected)
	m.stopPingLocked()
	return m.generation.Load(), true
}

// teardown закрывает handle поколения gen и планирует переподключение
//
// Между markFailed и handleMu.Lock мог пройти новый Connect или Close;
// тогда handle уже другой и закрывать его нельзя.
func (m *Manager) teardown(gen uint64) {
	m.handleMu.Lock()
	if m.generation.Load() != gen {
		m.handleMu.Unlock()
		m.logger.Debug().Uint64("generation", gen).Msg("handle already replaced, close skipped")
		return
	}
	if err := m.adapter.Close(context.Background()); err != nil {
		m.logger.Warn().Err(err).Msg("close after failure failed")
	}
	m.generation.Add(1)
	m.handleMu.Unlock()

	m.mu.Lock()
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// acquire проверяет состояние и берет handleMu на чтение
// Возвращает release, который нужно вызвать после обращения к драйверу.
func (m *Manager) acquire() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateClosed:
		return nil, ErrClosed
	case StateConnected:
		m.handleMu.RLock()
		return m.handleMu.RUnlock, nil
	default:
		m.logger.Error().Str("state", m.state.String()).Msg("query while not connected")
		m.scheduleReconnectLocked()
		return nil, ErrConnectionUnavailable
	}
}

// Execute выполняет один запрос
//
// Любая ошибка драйвера разрывает подключение (кроме отмены контекста
// самим вызывающим) и возвращается как *QueryError.
func (m *Manager) Execute(ctx context.Context, sql string, params ...any) ([]adapters.Row, error) {
	start := time.Now()

	release, err := m.acquire()
	if err != nil {
		metrics.RecordQuery(m.backend(), metrics.OutcomeUnavailable, time.Since(start))
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	rows, err := m.adapter.Execute(qctx, sql, params...)
	cancel()
	release()

	m.queries.Add(1)
	if err != nil {
		m.queryFailed(ctx, err, start)
		return nil, newQueryError(m.adapter, sql, params, m.cfg.Debug, err)
	}

	metrics.RecordQuery(m.backend(), metrics.OutcomeOK, time.Since(start))
	return rows, nil
}

// BatchExecute выполняет statements в одной транзакции
//
// ErrNotSupported от драйвера возвращается как есть и подключение не рвет.
func (m *Manager) BatchExecute(ctx context.Context, statements []string) (bool, error) {
	start := time.Now()

	release, err := m.acquire()
	if err != nil {
		metrics.RecordQuery(m.backend(), metrics.OutcomeUnavailable, time.Since(start))
		return false, err
	}

	qctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	err = m.adapter.BatchExecute(qctx, statements)
	cancel()
	release()

	m.queries.Add(1)
	if errors.Is(err, adapters.ErrNotSupported) {
		metrics.RecordQuery(m.backend(), metrics.OutcomeError, time.Since(start))
		return false, err
	}
	if err != nil {
		m.queryFailed(ctx, err, start)
		return false, newQueryError(m.adapter, strings.Join(statements, ";\n"), nil, m.cfg.Debug, err)
	}

	metrics.RecordQuery(m.backend(), metrics.OutcomeOK, time.Since(start))
	return true, nil
}

func (m *Manager) queryFailed(ctx context.Context, err error, start time.Time) {
	m.queryFailures.Add(1)
	metrics.RecordQuery(m.backend(), metrics.OutcomeError, time.Since(start))

	if ctx.Err() != nil {
		// вызывающий ушел сам, подключение тут ни при чем
		return
	}
	m.handleConnectionError(err)
}

// Close останавливает оба таймера и закрывает подключение
// Повторный Close ничего не делает.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.stopPingLocked()
	m.stopReconnectLocked()
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.handleMu.Lock()
	err := m.adapter.Close(ctx)
	m.generation.Add(1)
	m.handleMu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Msg("close failed")
		return fmt.Errorf("close %s: %w", m.backend(), err)
	}
	m.logger.Info().Msg("connection closed")
	return nil
}
