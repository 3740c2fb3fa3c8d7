package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid=") {
		t.Errorf("lock file content = %q, want pid= prefix", data)
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "LOCK")

	l1, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(path)
	var lockErr *LockHeldError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if lockErr.Owner.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", lockErr.Owner.PID, os.Getpid())
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	if err := Check(path); err != nil {
		t.Fatalf("Check() on free lock = %v", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Release() }()

	var lockErr *LockHeldError
	if err := Check(path); !errors.As(err, &lockErr) {
		t.Errorf("Check() on held lock = %v, want LockHeldError", err)
	}
}

func TestAdvertise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")
	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Release() }()

	if err := l.Advertise("127.0.0.1:8080"); err != nil {
		t.Fatal(err)
	}
	owner, err := ReadOwner(path)
	if err != nil {
		t.Fatal(err)
	}
	if owner.PID != os.Getpid() || owner.HTTP != "127.0.0.1:8080" || owner.Since.IsZero() {
		t.Errorf("owner = %+v", owner)
	}

	// A shorter address must not leave bytes of the longer one behind.
	if err := l.Advertise("[::1]:80"); err != nil {
		t.Fatal(err)
	}
	if owner, _ = ReadOwner(path); owner.HTTP != "[::1]:80" {
		t.Errorf("http = %q", owner.HTTP)
	}
}

func TestDecodeOwner(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pid     int
		http    string
	}{
		{"full", "pid=42\nsince=2026-01-02T03:04:05Z\nhttp=127.0.0.1:3000\n", 42, "127.0.0.1:3000"},
		{"no http", "pid=7\n", 7, ""},
		{"garbage", "not a lock file", 0, ""},
		{"empty", "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := decodeOwner(tt.content)
			if o.PID != tt.pid || o.HTTP != tt.http {
				t.Errorf("decodeOwner(%q) = %+v", tt.content, o)
			}
		})
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l, err := Acquire(filepath.Join(t.TempDir(), "LOCK"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
