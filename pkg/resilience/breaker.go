// Package resilience - circuit breaker для внешних получателей (брокеры audit)
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen - breaker открыт, вызов не выполнялся
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State - состояние breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config - параметры breaker
type Config struct {
	Enabled bool `yaml:"enabled"`

	// MaxFailures - подряд идущие ошибки, после которых breaker открывается
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout - время в open до пробного вызова (half-open)
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// SuccessThreshold - успешные пробные вызовы для закрытия
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// OnStateChange вызывается синхронно под блокировкой; не должен вызывать Breaker
	OnStateChange func(from, to State) `yaml:"-"`
}

// DefaultConfig - 5 ошибок, 30 секунд паузы
func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		SuccessThreshold: 1,
	}
}

// Validate проверяет параметры и подставляет SuccessThreshold по умолчанию
func (c *Config) Validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be greater than 0")
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open_timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	return nil
}

// Counts - счетчики текущего состояния
type Counts struct {
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
	Rejected             uint64
}

// Breaker - closed → open после MaxFailures ошибок подряд, open → half-open
// через OpenTimeout, half-open → closed после SuccessThreshold успехов.
// Любая ошибка в half-open снова открывает breaker.
type Breaker struct {
	mu       sync.Mutex
	config   Config
	state    State
	counts   Counts
	openedAt time.Time
	now      func() time.Time
}

// New создает breaker в состоянии closed
func New(config Config) (*Breaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &Breaker{config: config, now: time.Now}, nil
}

// Execute вызывает fn, если breaker пропускает вызов
// Отмена ctx вызывающим не считается ошибкой получателя.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err == nil || ctx.Err() != nil)
	return err
}

// State возвращает текущее состояние с учетом истекшего OpenTimeout
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return b.state
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset принудительно закрывает breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked()
	if b.state == StateOpen {
		b.counts.Rejected++
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.counts.ConsecutiveFailures = 0
		b.counts.ConsecutiveSuccesses++
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.config.SuccessThreshold {
			b.setLocked(StateClosed)
		}
		return
	}

	b.counts.ConsecutiveSuccesses = 0
	b.counts.ConsecutiveFailures++
	switch b.state {
	case StateHalfOpen:
		b.setLocked(StateOpen)
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.MaxFailures {
			b.setLocked(StateOpen)
		}
	}
}

func (b *Breaker) expireLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.OpenTimeout {
		b.setLocked(StateHalfOpen)
	}
}

func (b *Breaker) setLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.counts.ConsecutiveFailures = 0
	b.counts.ConsecutiveSuccesses = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
