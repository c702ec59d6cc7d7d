package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gomailer/mail-service/internal/cli"
	"github.com/gomailer/mail-service/pkg/logger"
)

func main() {
	// initialize logging early; serve reconfigures it from LOG_LEVEL/LOG_FORMAT
	logger.Init(os.Getenv("LOG_LEVEL"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		logger.Errorf("%v", err)
		cancel()
		os.Exit(1)
	}
}
