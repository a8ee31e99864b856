package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryableFunc - функция которую можно повторить
type RetryableFunc func(ctx context.Context) error

// Backoff вычисляет задержку перед попыткой attempt (с 1)
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	strategy   BackoffStrategy
	multiplier float64
	jitter     float64
}

// NewBackoff создает Backoff из проверенной конфигурации
func NewBackoff(config Config) (*Backoff, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Backoff{
		initial:    config.InitialDelay,
		max:        config.MaxDelay,
		strategy:   config.Strategy,
		multiplier: config.Multiplier,
		jitter:     config.Jitter,
	}, nil
}

// Delay возвращает задержку для попытки attempt
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch b.strategy {
	case BackoffLinear:
		delay = b.initial * time.Duration(attempt)
	case BackoffExponential:
		f := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1))
		if f >= float64(b.max) {
			delay = b.max
		} else {
			delay = time.Duration(f)
		}
	default:
		delay = b.initial
	}

	if delay > b.max {
		delay = b.max
	}

	if b.jitter > 0 {
		delay += time.Duration(float64(delay) * b.jitter * (rand.Float64()*2 - 1))
		if delay <= 0 {
			delay = b.initial
		}
	}

	return delay
}

// Retryer выполняет функцию с повторами и складывает неудачи в DLQ
type Retryer struct {
	config  Config
	backoff *Backoff
	dlq     *DLQ
}

// NewRetryer создает новый Retryer
func NewRetryer(config Config) (*Retryer, error) {
	backoff, err := NewBackoff(config)
	if err != nil {
		return nil, err
	}

	var dlq *DLQ
	if config.DLQ.Enabled {
		dlq, err = NewDLQ(config.DLQ)
		if err != nil {
			return nil, fmt.Errorf("failed to create DLQ: %w", err)
		}
	}

	return &Retryer{config: config, backoff: backoff, dlq: dlq}, nil
}

// Do выполняет функцию с повторами
func (r *Retryer) Do(ctx context.Context, fn RetryableFunc) error {
	return r.do(ctx, fn, nil)
}

// DoWithData выполняет функцию с повторами; при исчерпании попыток
// payload попадает в DLQ
func (r *Retryer) DoWithData(ctx context.Context, fn RetryableFunc, payload []byte) error {
	return r.do(ctx, fn, payload)
}

func (r *Retryer) do(ctx context.Context, fn RetryableFunc, payload []byte) error {
	attempts := 0

	for {
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !r.isRetryableError(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if r.config.MaxAttempts > 0 && attempts >= r.config.MaxAttempts {
			r.deadLetter(attempts, err, FailureMaxAttempts, payload)
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, err)
		}

		delay := r.backoff.Delay(attempts)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.deadLetter(attempts, err, FailureCancelled, payload)
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func (r *Retryer) deadLetter(attempts int, err error, failure string, payload []byte) {
	if r.dlq == nil || payload == nil {
		return
	}
	r.dlq.Add(DLQEntry{
		Timestamp:   time.Now().UTC(),
		Attempts:    attempts,
		LastError:   err.Error(),
		FailureType: failure,
		Payload:     payload,
	})
}

// isRetryableError проверяет нужен ли повтор для ошибки
func (r *Retryer) isRetryableError(err error) bool {
	if len(r.config.RetryableErrors) == 0 {
		return true
	}

	errStr := err.Error()
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// DLQ возвращает очередь, если она включена
func (r *Retryer) DLQ() *DLQ {
	return r.dlq
}

// Close сохраняет DLQ
func (r *Retryer) Close() error {
	if r.dlq != nil {
		return r.dlq.Save()
	}
	return nil
}
