package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAppenderConfig - конфигурация Redis appender
type RedisAppenderConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix - префикс ключей и канала (по умолчанию "datacore:audit")
	Prefix string `yaml:"prefix"`

	// MaxLen - сколько последних записей хранить на таблицу (по умолчанию 1000)
	MaxLen int64 `yaml:"max_len"`

	// TTL - время жизни списка таблицы, 0 = без истечения
	TTL time.Duration `yaml:"ttl"`

	Level Level `yaml:"-"`
}

// RedisAppender публикует audit entries в Redis
//
// Redis-ключи:
//
//	LPUSH <prefix>:<table> <JSON>  + LTRIM до MaxLen   — история изменений таблицы
//	PUB   <prefix>                                     — поток событий для подписчиков
type RedisAppender struct {
	client *redis.Client
	config RedisAppenderConfig
	owned  bool
}

// NewRedisAppender создает appender со своим клиентом
func NewRedisAppender(config RedisAppenderConfig) (*RedisAppender, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("audit: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	a := NewRedisAppenderWithClient(client, config)
	a.owned = true
	return a, nil
}

// NewRedisAppenderWithClient использует внешний клиент; Close его не закрывает
func NewRedisAppenderWithClient(client *redis.Client, config RedisAppenderConfig) *RedisAppender {
	if config.Prefix == "" {
		config.Prefix = "datacore:audit"
	}
	if config.MaxLen <= 0 {
		config.MaxLen = 1000
	}
	return &RedisAppender{client: client, config: config}
}

// ListKey - ключ истории таблицы
func (ra *RedisAppender) ListKey(table string) string {
	return fmt.Sprintf("%s:%s", ra.config.Prefix, table)
}

// Channel - канал pub/sub
func (ra *RedisAppender) Channel() string {
	return ra.config.Prefix
}

// Append - одна транзакция MULTI/EXEC: история + событие
func (ra *RedisAppender) Append(ctx context.Context, entry *Entry) error {
	payload, err := entry.FilterByLevel(ra.config.Level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := ra.ListKey(entry.Table)
	_, err = ra.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, ra.config.MaxLen-1)
		if ra.config.TTL > 0 {
			pipe.Expire(ctx, key, ra.config.TTL)
		}
		pipe.Publish(ctx, ra.Channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis audit write failed: %w", err)
	}
	return nil
}

// Close закрывает клиент, если appender его создал
func (ra *RedisAppender) Close() error {
	if ra.owned {
		return ra.client.Close()
	}
	return nil
}

func (ra *RedisAppender) Name() string {
	return "redis"
}
