package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name        string
		environ     []string
		wantSource  string
		wantContent string
		wantErr     bool
	}{
		{
			name:        "defaults",
			environ:     []string{"BRICKVIEW_POSTGRES_DSN=postgres://localhost", "BRICKVIEW_S3_URL=http://localhost:9000"},
			wantSource:  sourcePostgres,
			wantContent: contentS3,
		},
		{
			name: "file source and content",
			environ: []string{
				"BRICKVIEW_SOURCE=file",
				"BRICKVIEW_CONTENT=file",
				"BRICKVIEW_FILE_BUILDS_PATH=builds.json",
				"BRICKVIEW_FILE_ARTIFACTS_DIR=artifacts",
			},
			wantSource:  sourceFile,
			wantContent: contentFile,
		},
		{
			name:    "missing postgres dsn",
			environ: []string{"BRICKVIEW_S3_URL=http://localhost:9000"},
			wantErr: true,
		},
		{
			name:    "missing nats url",
			environ: []string{"BRICKVIEW_SOURCE=nats", "BRICKVIEW_S3_URL=http://localhost:9000"},
			wantErr: true,
		},
		{
			name:    "unknown source",
			environ: []string{"BRICKVIEW_SOURCE=kafka", "BRICKVIEW_S3_URL=http://localhost:9000"},
			wantErr: true,
		},
		{
			name:    "unknown content",
			environ: []string{"BRICKVIEW_POSTGRES_DSN=postgres://localhost", "BRICKVIEW_CONTENT=ftp"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseConfig(tt.environ, filepath.Join(t.TempDir(), ".env"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("got no error, want one")
				}
				return
			}
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}
			if got, want := cfg.source(), tt.wantSource; got != want {
				t.Fatalf("got %q source, want %q", got, want)
			}
			if got, want := cfg.content(), tt.wantContent; got != want {
				t.Fatalf("got %q content, want %q", got, want)
			}
		})
	}
}

func TestParseConfigEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	data := "BRICKVIEW_POSTGRES_DSN=postgres://from-file\n" +
		"BRICKVIEW_POSTGRES_POLL_INTERVAL=5s\n" +
		"BRICKVIEW_S3_URL=http://from-file:9000\n"
	if err := os.WriteFile(envFile, []byte(data), 0o600); err != nil {
		t.Fatalf("didn't want %q", err)
	}

	cfg, err := parseConfig([]string{"BRICKVIEW_S3_URL=http://from-environ:9000"}, envFile)
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}

	if got, want := cfg.Postgres.DSN, "postgres://from-file"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := cfg.Postgres.PollInterval, 5*time.Second; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := cfg.S3.URL, "http://from-environ:9000"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
