package contentfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/k11v/brickview/internal/content"
)

// Store reads artifacts from a local directory.
type Store struct {
	root *os.Root // required
}

// New opens dir. The caller closes the store.
func New(dir string) (*Store, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("contentfile.New: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Close() error {
	return s.root.Close()
}

// Fetch reads the file at ref, a slash-separated path relative to the
// directory. A leading file:// or slash is ignored.
// References that escape the directory are rejected.
func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	name, err := fileName(ref)
	if err != nil {
		return nil, err
	}

	f, err := s.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("contentfile.Store: %s: %w", ref, content.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("contentfile.Store: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("contentfile.Store: %w", err)
	}
	return data, nil
}

// Put writes r to the file at ref and returns a file:// reference to it.
// The parent directory must exist.
func (s *Store) Put(ctx context.Context, ref string, r io.Reader) (string, error) {
	name, err := fileName(ref)
	if err != nil {
		return "", err
	}

	f, err := s.root.Create(name)
	if err != nil {
		return "", fmt.Errorf("contentfile.Store: %w", err)
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.root.Remove(name)
		return "", fmt.Errorf("contentfile.Store: %w", err)
	}

	return "file://" + name, nil
}

func fileName(ref string) (string, error) {
	name := strings.TrimPrefix(ref, "file://")
	name = strings.TrimPrefix(name, "/")
	if !fs.ValidPath(name) || name == "." {
		return "", fmt.Errorf("contentfile.Store: %q: %w", ref, fs.ErrInvalid)
	}
	return name, nil
}
