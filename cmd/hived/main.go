package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/hive/internal/config"
	"github.com/matheus3301/hive/internal/daemon"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to hived.toml")
	initFlag := flag.Bool("init", false, "write a default config to --config and exit")
	flag.Parse()

	if *initFlag {
		if err := config.Save(*configFlag, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configFlag)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
