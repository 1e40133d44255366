package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/geopresence/internal/client/app"
	"github.com/dmitrijs2005/geopresence/internal/client/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "geopresence:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	rt, err := app.New(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Run(ctx)
}
