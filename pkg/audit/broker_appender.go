package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruslano69/datacore/pkg/brokers"
	"github.com/ruslano69/datacore/pkg/resilience"
	"github.com/ruslano69/datacore/pkg/retry"
)

// BrokerAppender публикует audit entries в RabbitMQ/Kafka
//
// Ключ сообщения - имя таблицы. Публикация повторяется по retry.Config;
// если попытки исчерпаны, сообщение уходит в DLQ файл (если он включен).
// С breaker'ом серия неудач открывает цепь, и entries идут в DLQ сразу, без повторов.
type BrokerAppender struct {
	publisher brokers.Publisher
	retryer   *retry.Retryer
	breaker   *resilience.Breaker
	level     Level
}

// NewBrokerAppender - publisher должен быть уже подключен
func NewBrokerAppender(publisher brokers.Publisher, retryCfg retry.Config, level Level) (*BrokerAppender, error) {
	if publisher == nil {
		return nil, fmt.Errorf("audit: publisher is required")
	}

	retryer, err := retry.NewRetryer(retryCfg)
	if err != nil {
		return nil, fmt.Errorf("audit: broker retry: %w", err)
	}

	return &BrokerAppender{
		publisher: publisher,
		retryer:   retryer,
		level:     level,
	}, nil
}

// WithBreaker включает circuit breaker перед публикацией
func (ba *BrokerAppender) WithBreaker(b *resilience.Breaker) *BrokerAppender {
	ba.breaker = b
	return ba
}

// Append - публикация с повторами
func (ba *BrokerAppender) Append(ctx context.Context, entry *Entry) error {
	payload, err := entry.FilterByLevel(ba.level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	publish := func(ctx context.Context) error {
		return ba.retryer.DoWithData(ctx, func(ctx context.Context) error {
			return ba.publisher.Publish(ctx, entry.Table, payload)
		}, payload)
	}

	if ba.breaker != nil {
		err = ba.breaker.Execute(ctx, publish)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			ba.deadLetter(err, payload)
		}
	} else {
		err = publish(ctx)
	}

	if err != nil {
		return fmt.Errorf("%s publish: %w", ba.publisher.GetBrokerType(), err)
	}
	return nil
}

func (ba *BrokerAppender) deadLetter(err error, payload []byte) {
	dlq := ba.retryer.DLQ()
	if dlq == nil {
		return
	}
	dlq.Add(retry.DLQEntry{
		Timestamp:   time.Now().UTC(),
		LastError:   err.Error(),
		FailureType: retry.FailureCircuitOpen,
		Payload:     payload,
	})
}

// DLQ - неотправленные сообщения, nil если DLQ выключена
func (ba *BrokerAppender) DLQ() *retry.DLQ {
	return ba.retryer.DLQ()
}

// Close сохраняет DLQ и закрывает publisher
func (ba *BrokerAppender) Close() error {
	dlqErr := ba.retryer.Close()
	if err := ba.publisher.Close(); err != nil {
		return err
	}
	return dlqErr
}

func (ba *BrokerAppender) Name() string {
	return ba.publisher.GetBrokerType()
}
