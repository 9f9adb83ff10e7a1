package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/procurement/cmd/procurectl/cli"
	"github.com/odyssey-erp/procurement/internal/app"
	"github.com/odyssey-erp/procurement/internal/masterdata"
	"github.com/odyssey-erp/procurement/internal/platform/cache"
	"github.com/odyssey-erp/procurement/internal/platform/db"
	"github.com/odyssey-erp/procurement/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	root := cli.NewRootCommand(cli.Deps{
		Migrator: func(context.Context) (cli.MigrationRunner, error) {
			return db.NewMigrator(migrations.Files, cfg.PGDSN)
		},
		Jobs: func(context.Context) (cli.JobRunner, error) {
			return cli.NewJobsCLI(cfg.RedisAddr)
		},
		MasterData: func(ctx context.Context) (cli.CacheInvalidator, func() error, error) {
			client, err := cache.New(ctx, cfg.RedisAddr)
			if err != nil {
				return nil, nil, err
			}
			return masterdata.NewCache(client, cfg.MasterDataCacheTTL, logger), client.Close, nil
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "procurectl:", err)
		os.Exit(1)
	}
}
