package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"warehouse-ledger/internal/adapters/cli"
	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/config"
	"warehouse-ledger/internal/db"
	"warehouse-ledger/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("stockctl", cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	env := &cli.Env{
		Config: cfg,
		Open: func(ctx context.Context) (app.ApplicationService, func(), error) {
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return app.NewAppService(pool, logger.Logger), pool.Close, nil
		},
		Migrate: db.Migrate,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cli.NewRootCommand(env).ExecuteContext(ctx)
	env.Close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
