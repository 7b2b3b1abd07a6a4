// Command consumer drains the booking events queue into
// <EVENTS_LOG_DIR>/booking.log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-charter-booking/internal/config"
	"github.com/iliyamo/bus-charter-booking/internal/logger"
	"github.com/iliyamo/bus-charter-booking/internal/queue"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	log, err := logger.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	broker := config.LoadBrokerConfig()
	if err := os.MkdirAll(broker.LogDir, 0o755); err != nil {
		log.Fatal("create log dir", zap.String("dir", broker.LogDir), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("consumer started", zap.String("queue", broker.Queue), zap.String("dir", broker.LogDir))
	c := queue.NewConsumer(broker.URL, broker.Queue, broker.LogDir, log)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("consumer stopped", zap.Error(err))
	}
	log.Info("consumer stopped")
}
