package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"tradebridge/internal/app"
	"tradebridge/internal/config"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"

	"github.com/grafana/pyroscope-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:  "bridge",
		Usage: "Мост исполнения стратегий для торгового терминала",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Путь к файлу конфигурации",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Запустить мост",
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Вывести JSON-схему стратегии",
				Action: schemaAction,
			},
			{
				Name:  "version",
				Usage: "Вывести версию",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Printf("bridge %s (protocol %s)\n", version, protocol.Version)
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	if cfg.Runtime.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Runtime.Profiling.ApplicationName,
			ServerAddress:   cfg.Runtime.Profiling.ServerAddress,
			Logger:          log.Logrus(),
			Tags:            map[string]string{"version": version},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.WithError(err).Warn("Профилирование не запущено.")
		} else {
			defer func() {
				_ = profiler.Stop()
			}()
		}
	}

	bridge, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 is the operator's local emergency stop.
	panicCh := make(chan os.Signal, 1)
	signal.Notify(panicCh, syscall.SIGUSR1)
	defer signal.Stop(panicCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-panicCh:
				if err := bridge.EmergencyStop(ctx, "сигнал SIGUSR1"); err != nil {
					log.WithError(err).Error("Не удалось запросить аварийный стоп.")
				}
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"version":    version,
		"strategies": len(cfg.Strategies),
	}).Info("Мост запущен.")

	if err := bridge.Start(ctx); err != nil {
		log.WithError(err).Error("Мост завершился с ошибкой.")
		return err
	}
	return nil
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	raw, err := models.StrategySchema()
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
