// Package main provides the tabquery command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/tabquery/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
