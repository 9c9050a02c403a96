package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// getBinaryPath returns the path to the job_tracker binary for testing
func getBinaryPath(t *testing.T) string {
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", "job_tracker")
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/job_tracker ./cmd/job_tracker'", binaryPath)
	}

	return binaryPath
}

// writeFile writes content into dir/name and returns the path
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// offlineConfig writes a config using the mock provider and in-memory index
func offlineConfig(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JOBTRACK_DATABASE_URL", "")
	return writeFile(t, dir, "config.json", `{
  "embedding": {"provider": "mock"},
  "vector": {"backend": "memory"},
  "pipeline": {"concurrency": 2}
}`)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
