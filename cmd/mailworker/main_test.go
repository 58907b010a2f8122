package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRequiresSMTP(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
email:
  transport: kafka
  kafka:
    brokers: ["localhost:9092"]
`), 0o600))

	err := run(context.Background(), []string{"-config", dir})
	require.ErrorContains(t, err, "email.smtp.enabled")
}

func TestRunRequiresBrokers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
email:
  smtp:
    enabled: true
    host: smtp.example.com
    port: 587
`), 0o600))

	err := run(context.Background(), []string{"-config", dir})
	require.ErrorContains(t, err, "broker")
}

func TestLoadConfigMissingPath(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
