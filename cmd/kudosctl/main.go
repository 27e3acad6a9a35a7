package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/kudos/internal/cli"
	"github.com/okian/kudos/pkg/logger"
)

func main() {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(logger.Get()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
