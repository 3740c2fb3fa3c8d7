package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/lock"
)

// clean wipes credential material and the app database. It refuses to run
// while a daemon holds the data dir lock.
func clean(cfg *config.Config, media bool) ([]string, error) {
	layout := cfg.Layout()
	if err := lock.Check(layout.LockPath()); err != nil {
		return nil, fmt.Errorf("stop the daemon first: %w", err)
	}

	db := layout.AppDBPath()
	targets := []string{layout.AuthRoot(), db, db + "-wal", db + "-shm"}
	if media {
		targets = append(targets, cfg.MediaDir())
	}

	var removed []string
	for _, p := range targets {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
