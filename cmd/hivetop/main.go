package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/hive/internal/admin"
	"github.com/matheus3301/hive/internal/config"
	"github.com/matheus3301/hive/internal/monitor"
)

func main() {
	configFlag := flag.String("config", config.DefaultPath(), "path to hived.toml")
	socketFlag := flag.String("socket", "", "admin socket (overrides config)")
	intervalFlag := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	socket := cfg.Admin.SocketPath
	if *socketFlag != "" {
		socket = *socketFlag
	}

	c, err := admin.Dial(socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	app := monitor.NewApp(c, socket, *intervalFlag)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
