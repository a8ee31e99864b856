// datacore - служебный процесс ядра доступа к данным.
//
// Usage:
//
//	datacore [--config path] [--addr :8080] [--dev]
//	datacore [--config path] --exec "SELECT ..."
//
// Flags:
//
//	--config  путь к datacore.yaml (необязательно; переменные окружения перекрывают файл)
//	--env     путь к .env файлу (по умолчанию .env в текущем каталоге)
//	--addr    адрес служебного HTTP, перекрывает server.addr
//	--dev     встроенный miniredis для Redis audit appender
//	--exec    выполнить один запрос, напечатать строки JSON и выйти
//	--unsafe  разрешить в --exec изменяющие запросы (только root/Administrator)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/datacore/pkg/config"
	"github.com/ruslano69/datacore/pkg/connection"
	"github.com/ruslano69/datacore/pkg/logging"
	"github.com/ruslano69/datacore/pkg/security"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	envFile := flag.String("env", "", "path to .env file")
	addrOverride := flag.String("addr", "", "listen address override (e.g. :8080)")
	dev := flag.Bool("dev", false, "dev mode: in-process miniredis for the audit stream")
	execSQL := flag.String("exec", "", "execute one statement, print rows as JSON and exit")
	unsafe := flag.Bool("unsafe", false, "allow write statements in --exec (requires admin)")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(*configPath, envFiles...)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("config load failed")
	}
	if *addrOverride != "" {
		cfg.Server.Addr = *addrOverride
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}

	if *execSQL != "" {
		if *unsafe && !security.IsAdmin() {
			log.Fatal().Str("user", security.CurrentUser()).Msg("--unsafe requires administrator privileges")
		}
		if err := runExec(cfg, security.Guard{Unsafe: *unsafe}, *execSQL, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("exec failed")
		}
		return
	}

	if err := serve(cfg, *dev); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// runExec - одноразовый запрос без ping/reconnect циклов
func runExec(cfg *config.Config, guard security.Guard, sql string, out io.Writer) error {
	if err := guard.Check(sql); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.ConnectTimeout+cfg.Connection.QueryTimeout)
	defer cancel()

	manager, err := connection.NewFromConfig(cfg.Database.AdapterConfig(), cfg.ConnectionOptions(), logging.Component("connection"))
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	if err := manager.Connect(ctx); err != nil {
		return err
	}

	rows, err := manager.Execute(ctx, sql)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func serve(cfg *config.Config, dev bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Connection.ConnectTimeout)
	a, err := initApp(connectCtx, cfg, dev)
	cancel()
	if err != nil {
		return err
	}

	if dev {
		log.Warn().Msg("DEV MODE: in-process miniredis, do not use in production")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(a.manager, logging.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", a.manager.Backend()).
			Bool("dev", dev).
			Msg("datacore started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		a.shutdown(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	a.shutdown(shutdownCtx)

	log.Info().Msg("stopped")
	return nil
}
