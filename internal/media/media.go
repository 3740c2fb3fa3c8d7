// Package media stores downloaded message media on local disk.
package media

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store writes blobs under <dir>/<instance>/<messageID>.<ext> and hands out
// public references under prefix.
type Store struct {
	dir    string
	prefix string
}

// New creates a media store rooted at dir.
func New(dir, prefix string) *Store {
	if prefix == "" {
		prefix = "/media"
	}
	return &Store{dir: dir, prefix: strings.TrimRight(prefix, "/")}
}

// Dir returns the media root.
func (s *Store) Dir() string {
	return s.dir
}

// Prefix returns the public URL prefix.
func (s *Store) Prefix() string {
	return s.prefix
}

// Save writes data and returns its public reference.
func (s *Store) Save(instanceID, msgID, ext string, data []byte) (string, error) {
	name := safeName(msgID)
	if ext != "" {
		name += "." + safeName(ext)
	}
	dir := filepath.Join(s.dir, safeName(instanceID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("write media %s: %w", name, err)
	}
	return path.Join(s.prefix, safeName(instanceID), name), nil
}

// RemoveInstance deletes every stored blob for an instance. Missing dirs are fine.
func (s *Store) RemoveInstance(instanceID string) error {
	return os.RemoveAll(filepath.Join(s.dir, safeName(instanceID)))
}

// Orphans lists instance directories that are not in known.
func (s *Store) Orphans(known []string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(known))
	for _, id := range known {
		keep[safeName(id)] = true
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !keep[e.Name()] {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// safeName keeps a path element inside its directory.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
