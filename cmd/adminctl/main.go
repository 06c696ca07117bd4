package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/storeadmin/storeadmin/cmd/adminctl/cli"
	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/app"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "adminctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.DBOptions())
	if err != nil {
		return err
	}
	defer pool.Close()

	inspector := asynq.NewInspector(cfg.RedisOptions().Queue())
	defer inspector.Close()

	return cli.New(cli.Deps{
		Users:    identity.NewRepository(pool),
		Accounts: accounts.NewRepository(pool),
		Queue:    inspector,
	}).ExecuteContext(ctx)
}
