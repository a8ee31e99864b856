package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy определяет стратегию задержки между повторами
type BackoffStrategy string

const (
	// BackoffConstant - постоянная задержка
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear - линейное увеличение задержки
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential - экспоненциальное увеличение задержки
	BackoffExponential BackoffStrategy = "exponential"
)

// Config содержит конфигурацию для retry механизма
type Config struct {
	// MaxAttempts - максимальное количество попыток (включая первую)
	// 0 = без ограничения (цикл переподключения)
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay - задержка перед первым повтором
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay - верхняя граница задержки
	MaxDelay time.Duration `yaml:"max_delay"`

	// Strategy - стратегия увеличения задержки
	Strategy BackoffStrategy `yaml:"strategy"`

	// Multiplier - множитель для exponential (обычно 2.0)
	Multiplier float64 `yaml:"multiplier"`

	// Jitter - доля случайного разброса задержки (0.0 - 1.0)
	Jitter float64 `yaml:"jitter"`

	// RetryableErrors - подстроки ошибок, для которых нужен повтор
	// Пустой список = повтор для всех ошибок
	RetryableErrors []string `yaml:"retryable_errors"`

	// OnRetry вызывается перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`

	// DLQ - куда складывать то, что не удалось доставить
	DLQ DLQConfig `yaml:"dlq"`
}

// DLQConfig содержит конфигурацию Dead Letter Queue
type DLQConfig struct {
	Enabled bool `yaml:"enabled"`

	// FilePath - JSON файл очереди
	FilePath string `yaml:"file_path"`

	// MaxSize - лимит записей, при превышении старые вытесняются
	MaxSize int `yaml:"max_size"`
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}

	if c.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be > 0, got %v", c.InitialDelay)
	}

	if c.MaxDelay == 0 {
		c.MaxDelay = c.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}

	switch c.Strategy {
	case "":
		c.Strategy = BackoffConstant
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff strategy: %s", c.Strategy)
	}

	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}

	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}

	if c.DLQ.Enabled && c.DLQ.FilePath == "" {
		return fmt.Errorf("dlq.file_path is required when dlq is enabled")
	}

	return nil
}

// ReconnectConfig - фиксированные 10 секунд между попытками, без лимита
func ReconnectConfig() Config {
	return Config{
		MaxAttempts:  0,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Second,
		Strategy:     BackoffConstant,
		Multiplier:   2.0,
	}
}

// PublishConfig - короткие экспоненциальные повторы для доставки в брокер
func PublishConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Strategy:     BackoffExponential,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WithDLQ включает файловую DLQ
func (c Config) WithDLQ(path string, maxSize int) Config {
	c.DLQ = DLQConfig{Enabled: true, FilePath: path, MaxSize: maxSize}
	return c
}
