package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/samber/do"
	"github.com/serroba/keythrottle/internal/container"
	"github.com/serroba/keythrottle/internal/messaging"
	"go.uber.org/zap"
)

// Options configures the audit consumer. Values come from flags or
// SERVICE_* environment variables.
type Options struct {
	RedisAddr   string `default:"localhost:6379" help:"Redis server holding the denied event stream" short:"r"`
	DatabaseURL string `default:""               help:"PostgreSQL URL for the audit store, empty logs only" short:"d"`
	LogFormat   string `default:"console"        help:"Log format: console or json"                 short:"l"`
}

func (o *Options) toContainer() *container.Options {
	return &container.Options{
		RedisAddr:   o.RedisAddr,
		DatabaseURL: o.DatabaseURL,
		LogFormat:   o.LogFormat,
	}
}

// run consumes denied events until ctx is cancelled.
func run(ctx context.Context, injector *do.Injector, logger *zap.Logger) error {
	group, err := do.Invoke[*messaging.ConsumerGroup](injector)
	if err != nil {
		return fmt.Errorf("build consumer group: %w", err)
	}

	if err := group.Start(ctx); err != nil {
		return err
	}

	logger.Info("consuming denied events", zap.String("group", container.AuditConsumerGroup))
	<-ctx.Done()

	return nil
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		injector := do.New()
		do.ProvideValue(injector, options.toContainer())
		container.LoggerPackage(injector)
		container.RedisPackage(injector)
		container.PostgresPackage(injector)
		container.ConsumerGroupPackage(injector)

		logger := do.MustInvoke[*zap.Logger](injector)

		hooks.OnStart(func() {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err := run(ctx, injector, logger)

			if shutdownErr := injector.Shutdown(); shutdownErr != nil {
				logger.Error("stopping services", zap.Error(shutdownErr))
			}

			if err != nil {
				logger.Fatal("consumer failed", zap.Error(err))
			}

			logger.Info("consumer stopped")
			_ = logger.Sync()
		})
	})

	cli.Run()
}
