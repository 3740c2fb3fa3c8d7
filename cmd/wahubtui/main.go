package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/monitor"
	"github.com/matheus3301/wahub/internal/paths"
)

func main() {
	configFlag := flag.String("config", paths.ConfigPath(), "path to config.toml")
	urlFlag := flag.String("url", "", "room router URL (default derived from http.listen)")
	flag.Parse()

	url := *urlFlag
	if url == "" {
		cfg, err := config.LoadOrDefault(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg.ApplyEnv()
		url = "ws://" + config.DialAddr(cfg.HTTP.Listen) + "/ws"
	}

	conn, err := monitor.Dial(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	if err := monitor.NewApp(conn, url).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
