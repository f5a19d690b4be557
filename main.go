package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mit-bot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "mit-bot:", err)
		stop()
		os.Exit(1)
	}
}
