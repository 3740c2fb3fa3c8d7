// Package paths derives every on-disk location from the data directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// BaseDir returns ~/.wahub.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wahub")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that an instance identifier is safe to use as a directory name.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid instance id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}

// Layout resolves file locations under a data directory.
type Layout struct {
	Root string
}

// New returns a Layout rooted at dir, or at BaseDir when dir is empty.
func New(dir string) Layout {
	if dir == "" {
		dir = BaseDir()
	}
	return Layout{Root: dir}
}

// AuthRoot returns the directory holding every instance's credential material.
func (l Layout) AuthRoot() string {
	return filepath.Join(l.Root, "auth")
}

// AuthDir returns the credential directory for one instance.
func (l Layout) AuthDir(id string) string {
	return filepath.Join(l.AuthRoot(), id)
}

// CredentialDBPath returns the whatsmeow session.db path for one instance.
func (l Layout) CredentialDBPath(id string) string {
	return filepath.Join(l.AuthDir(id), "session.db")
}

// AppDBPath returns the app-owned wahub.db path.
func (l Layout) AppDBPath() string {
	return filepath.Join(l.Root, "wahub.db")
}

// MediaDir returns the default media root.
func (l Layout) MediaDir() string {
	return filepath.Join(l.Root, "media")
}

// SocketPath returns the control socket path.
func (l Layout) SocketPath() string {
	return filepath.Join(l.Root, "wahubd.sock")
}

// LockPath returns the daemon lock file path.
func (l Layout) LockPath() string {
	return filepath.Join(l.Root, "LOCK")
}

// LogDir returns the log directory.
func (l Layout) LogDir() string {
	return filepath.Join(l.Root, "logs")
}

// LogPath returns the daemon log file path.
func (l Layout) LogPath() string {
	return filepath.Join(l.LogDir(), "wahubd.log")
}

// EnsureDir creates the data directory tree with proper permissions.
func (l Layout) EnsureDir() error {
	for _, d := range []string{l.Root, l.AuthRoot(), l.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// EnsureAuthDir creates the credential directory for one instance.
func (l Layout) EnsureAuthDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return os.MkdirAll(l.AuthDir(id), 0700)
}

// RemoveAuthDir deletes an instance's credential directory. A missing directory is not an error.
func (l Layout) RemoveAuthDir(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return os.RemoveAll(l.AuthDir(id))
}
