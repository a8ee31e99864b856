package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	_ "github.com/ruslano69/datacore/pkg/adapters/libsql"
	_ "github.com/ruslano69/datacore/pkg/adapters/mssql"
	_ "github.com/ruslano69/datacore/pkg/adapters/mysql"
	_ "github.com/ruslano69/datacore/pkg/adapters/postgres"
	_ "github.com/ruslano69/datacore/pkg/adapters/sqlite"
	"github.com/ruslano69/datacore/pkg/audit"
	"github.com/ruslano69/datacore/pkg/brokers"
	"github.com/ruslano69/datacore/pkg/config"
	"github.com/ruslano69/datacore/pkg/connection"
	"github.com/ruslano69/datacore/pkg/logging"
	"github.com/ruslano69/datacore/pkg/resilience"
	"github.com/ruslano69/datacore/pkg/security"
)

// app - живые зависимости процесса
type app struct {
	cfg     *config.Config
	manager *connection.Manager
	audit   audit.Logger
	logger  zerolog.Logger

	// dev-режим: встроенный Redis для audit appender; nil в production
	miniRedis *miniredis.Miniredis
}

// initApp создает менеджер подключения и журнал аудита
//
// Ошибка первого подключения не фатальна: менеджер уже запланировал reconnect,
// а /readyz отдает 503 до его успеха.
func initApp(ctx context.Context, cfg *config.Config, dev bool) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.Component("app"),
	}

	manager, err := connection.NewFromConfig(cfg.Database.AdapterConfig(), cfg.ConnectionOptions(), logging.Component("connection"))
	if err != nil {
		return nil, fmt.Errorf("connection manager: %w", err)
	}
	a.manager = manager

	if err := manager.Connect(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("initial connect failed, reconnect scheduled")
	}

	if dev {
		a.miniRedis, err = miniredis.Run()
		if err != nil {
			a.shutdown(ctx)
			return nil, fmt.Errorf("dev: miniredis: %w", err)
		}
		cfg.Audit.Redis.Enabled = true
		cfg.Audit.Redis.Address = a.miniRedis.Addr()
		a.logger.Info().Str("redis", a.miniRedis.Addr()).Msg("dev: in-process miniredis started")
	}

	auditLog, err := buildAudit(ctx, cfg, manager)
	if err != nil {
		a.shutdown(ctx)
		return nil, err
	}
	a.audit = auditLog

	return a, nil
}

// buildAudit собирает appenders по конфигурации
func buildAudit(ctx context.Context, cfg *config.Config, manager *connection.Manager) (audit.Logger, error) {
	ac := cfg.Audit
	if !ac.Enabled {
		return audit.NewNullLogger(), nil
	}

	level, err := audit.ParseLevel(ac.Level)
	if err != nil {
		return nil, err
	}

	var appenders []audit.Appender
	closeAll := func() {
		for _, ap := range appenders {
			ap.Close()
		}
	}

	if ac.LogTable != "" {
		sa, err := audit.NewSQLAppender(audit.SQLAppenderConfig{
			Executor: manager,
			Dialect:  manager.Dialect(),
			LogTable: ac.LogTable,
		})
		if err != nil {
			return nil, err
		}
		appenders = append(appenders, sa)
	}

	if ac.File.Path != "" {
		fa, err := audit.NewFileAppender(audit.FileAppenderConfig{
			FilePath:   ac.File.Path,
			MaxSize:    int64(ac.File.MaxSizeMB) * 1024 * 1024,
			MaxBackups: ac.File.MaxBackups,
			Compress:   ac.File.Compress,
			Level:      level,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		appenders = append(appenders, fa)
	}

	if ac.Console {
		appenders = append(appenders, audit.NewLogAppender(logging.Component("audit"), level))
	}

	if ac.Redis.Enabled {
		ra, err := audit.NewRedisAppender(audit.RedisAppenderConfig{
			Address:  ac.Redis.Address,
			Password: ac.Redis.Password,
			DB:       ac.Redis.DB,
			Prefix:   ac.Redis.Prefix,
			MaxLen:   ac.Redis.MaxLen,
			TTL:      ac.Redis.TTL,
			Level:    level,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		appenders = append(appenders, ra)
	}

	if ac.Broker.Enabled {
		pub, err := brokers.New(ac.Broker.Broker)
		if err != nil {
			closeAll()
			return nil, err
		}
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = pub.Connect(connectCtx)
		cancel()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("audit broker: %w", err)
		}
		ba, err := audit.NewBrokerAppender(pub, ac.Broker.PublishRetry(), level)
		if err != nil {
			pub.Close()
			closeAll()
			return nil, err
		}
		if ac.Broker.Breaker.Enabled {
			bc := ac.Broker.Breaker
			logger := logging.Component("audit")
			bc.OnStateChange = func(from, to resilience.State) {
				logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("audit broker circuit")
			}
			breaker, err := resilience.New(bc)
			if err != nil {
				ba.Close()
				closeAll()
				return nil, err
			}
			ba.WithBreaker(breaker)
		}
		appenders = append(appenders, ba)
	}

	cfgLogger := audit.SyncConfig()
	if ac.Async {
		cfgLogger = audit.DefaultConfig()
		cfgLogger.BufferSize = ac.BufferSize
	}
	cfgLogger.DefaultUser = ac.DefaultUser
	if cfgLogger.DefaultUser == "" {
		cfgLogger.DefaultUser = security.CurrentUser()
	}

	return audit.NewLogger(cfgLogger, logging.Component("audit"), appenders...), nil
}

// shutdown закрывает журнал, затем подключение
func (a *app) shutdown(ctx context.Context) {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Error().Err(err).Msg("audit close failed")
		}
	}
	if a.manager != nil {
		if err := a.manager.Close(ctx); err != nil {
			a.logger.Error().Err(err).Msg("connection close failed")
		}
	}
	if a.miniRedis != nil {
		a.miniRedis.Close()
	}
}
