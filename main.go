package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"decoration-mirror/config"
)

func main() {
	// Load .env file in development (ignores error if file doesn't exist)
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
