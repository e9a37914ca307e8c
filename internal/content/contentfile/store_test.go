package contentfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/k11v/brickview/internal/content"
)

func TestStoreFetch(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "artifacts")
	if err := os.MkdirAll(filepath.Join(dir, "b1"), 0o755); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b1", "output.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret"), []byte("secret"), 0o644); err != nil {
		t.Fatalf("didn't want %q", err)
	}

	s, err := New(dir)
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	defer s.Close()

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{name: "relative", ref: "b1/output.pdf", want: "pdf"},
		{name: "leading slash", ref: "/b1/output.pdf", want: "pdf"},
		{name: "file URL", ref: "file://b1/output.pdf", want: "pdf"},
		{name: "missing", ref: "b2/output.pdf", wantErr: content.ErrNotFound},
		{name: "escaping", ref: "../secret", wantErr: fs.ErrInvalid},
		{name: "escaping after clean", ref: "b1/../../secret", wantErr: fs.ErrInvalid},
		{name: "empty", ref: "", wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Fetch(context.Background(), tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("got no error, want one")
	}
}

func TestStorePut(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	defer s.Close()

	ref, err := s.Put(context.Background(), "b1.pdf", strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if got, want := ref, "file://b1.pdf"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err := s.Fetch(context.Background(), ref)
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if string(got) != "pdf" {
		t.Fatalf("got %q, want %q", got, "pdf")
	}

	if _, err = s.Put(context.Background(), "../b2.pdf", strings.NewReader("pdf")); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("got %v, want %v", err, fs.ErrInvalid)
	}
	if _, err = os.Stat(filepath.Join(filepath.Dir(dir), "b2.pdf")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want %v", err, fs.ErrNotExist)
	}
}
