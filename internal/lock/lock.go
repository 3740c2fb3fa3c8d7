// Package lock guarantees a single daemon per data directory and records
// where that daemon can be reached.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Owner is what the holding daemon writes into the lock file.
type Owner struct {
	PID   int
	Since time.Time
	HTTP  string
}

func (o Owner) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\nsince=%s\n", o.PID, o.Since.UTC().Format(time.RFC3339))
	if o.HTTP != "" {
		fmt.Fprintf(&b, "http=%s\n", o.HTTP)
	}
	return b.String()
}

func decodeOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, val)
		case "http":
			o.HTTP = val
		}
	}
	return o
}

// LockHeldError is returned when another process holds the data directory lock.
type LockHeldError struct {
	Owner Owner
	Path  string
}

func (e *LockHeldError) Error() string {
	if e.Owner.Since.IsZero() {
		return fmt.Sprintf("data dir lock held by PID %d (%s)", e.Owner.PID, e.Path)
	}
	return fmt.Sprintf("data dir lock held by PID %d since %s (%s)",
		e.Owner.PID, e.Owner.Since.Local().Format(time.DateTime), e.Path)
}

// Lock represents an acquired lock file.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes an exclusive, non-blocking flock on lockPath. Returns
// LockHeldError if another process holds it.
func Acquire(lockPath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &LockHeldError{Owner: decodeOwner(string(data)), Path: lockPath}
	}

	l := &Lock{file: f, path: lockPath, owner: Owner{PID: os.Getpid(), Since: time.Now()}}
	if err := l.write(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// Advertise records the daemon's HTTP address so local clients can find it.
func (l *Lock) Advertise(httpAddr string) error {
	if l == nil || l.file == nil {
		return nil
	}
	l.owner.HTTP = httpAddr
	return l.write()
}

func (l *Lock) write() error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(l.owner.encode()), 0); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// ReadOwner returns the owner recorded in lockPath. It does not check whether
// the lock is still held.
func ReadOwner(lockPath string) (Owner, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Owner{}, err
	}
	return decodeOwner(string(data)), nil
}

// Check reports whether some process currently holds lockPath, without keeping it.
func Check(lockPath string) error {
	l, err := Acquire(lockPath)
	if err != nil {
		return err
	}
	return l.Release()
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
