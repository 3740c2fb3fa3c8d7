package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/daemon"
	"github.com/matheus3301/wahub/internal/paths"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", paths.ConfigPath(), "path to config.toml")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
