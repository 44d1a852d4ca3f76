package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps objects as files below a root directory
type LocalStore struct {
	root string
}

func NewLocal(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

// path maps key below the root; cleaning against "/" keeps ".." from escaping
func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *LocalStore) Ping(context.Context) error {
	_, err := os.Stat(s.root)
	return err
}
