package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tradebridge/internal/config"
	"tradebridge/internal/logger"
	"tradebridge/internal/terminal/paper"
	"tradebridge/internal/terminal/server"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "terminal",
		Usage: "Бумажный терминал с мостовым протоколом для локальных запусков",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Путь к файлу конфигурации",
			},
			&cli.DurationFlag{
				Name:  "step",
				Usage: "Период случайного движения цен",
				Value: time.Second,
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Runtime.Log.Level,
		Format: cfg.Runtime.Log.Format,
	})

	catalog := paper.DefaultCatalog()
	if cfg.Server.Catalog != "" {
		catalog, err = paper.LoadCatalog(cfg.Server.Catalog)
		if err != nil {
			return err
		}
	}
	broker := paper.NewBroker(catalog, cfg.Server.Balance, cfg.Server.Currency)

	srv := server.New(server.Options{
		AuthToken:         cfg.Server.AuthToken,
		LockoutThreshold:  cfg.Server.LockoutThreshold,
		LockoutWindow:     cfg.Server.LockoutWindow,
		TelemetryInterval: cfg.Server.TelemetryInterval,
	}, broker, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if step := cmd.Duration("step"); step > 0 {
		go func() {
			ticker := time.NewTicker(step)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					broker.Step()
				}
			}
		}()
	}

	log.WithComponent("terminal").WithField("symbols", len(catalog.Instruments)).Info("Бумажный терминал запущен.")
	if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
		return err
	}
	log.WithComponent("terminal").Info("Бумажный терминал остановлен.")
	return nil
}
