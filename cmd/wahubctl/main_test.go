package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wahub/internal/config"
	"github.com/matheus3301/wahub/internal/lock"
)

func TestClientListAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/instances":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    []map[string]any{{"id": "acct1", "status": "connected", "active": true, "chatsCount": 3}},
			})
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": "ALREADY_ACTIVE", "message": "instance already active"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	list, err := c.ListInstances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "acct1" || !list[0].Active || list[0].ChatsCount != 3 {
		t.Errorf("list = %+v", list)
	}

	err = c.CreateInstance(ctx, "acct1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "ALREADY_ACTIVE" || apiErr.Status != http.StatusConflict {
		t.Errorf("create err = %v", err)
	}

	if err := c.DeleteInstance(ctx, "acct1"); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestClean(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	layout := cfg.Layout()
	if err := layout.EnsureAuthDir("acct1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.AppDBPath(), []byte("db"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.MediaDir(), "acct1"), 0o755); err != nil {
		t.Fatal(err)
	}

	l, err := lock.Acquire(layout.LockPath())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := clean(cfg, false); err == nil {
		t.Error("clean succeeded while locked")
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}

	removed, err := clean(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v", removed)
	}
	if _, err := os.Stat(layout.AuthRoot()); !os.IsNotExist(err) {
		t.Error("auth root still present")
	}
	if _, err := os.Stat(cfg.MediaDir()); err != nil {
		t.Error("media removed without --media")
	}
}
