package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscribe/chainscribe/pkg/auth"
	"github.com/chainscribe/chainscribe/pkg/scheduler"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chainscribe.yaml")
	cfg := "db_path: " + filepath.Join(dir, "chainscribe.db") + "\n" +
		"log_level: error\n" +
		"budget:\n  daily_budget: 5\n" +
		"audit:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHashToken(t *testing.T) {
	out, err := run(t, "", "admin", "hash-token", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	ok, err := auth.VerifyToken("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	out, err = run(t, "from-stdin\n", "admin", "hash-token")
	require.NoError(t, err)
	ok, err = auth.VerifyToken("from-stdin", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = run(t, "\n", "admin", "hash-token")
	assert.Error(t, err)
}

func TestCostCommands(t *testing.T) {
	cfgPath := writeConfig(t)
	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)

	g, j, err := openLedger(context.Background(), cfg, setupLogger("error", &bytes.Buffer{}))
	require.NoError(t, err)
	_, err = g.TrackRequest(context.Background(), "chainscribe-docusense-v1", 1000, 0)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := run(t, "", "-c", cfgPath, "cost", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:         1")

	out, err = run(t, "", "-c", cfgPath, "cost", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Daily usage reset")

	out, err = run(t, "", "-c", cfgPath, "cost", "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:         0")

	out, err = run(t, "", "-c", cfgPath, "cost", "history", "--days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "archived")
	assert.Contains(t, out, "chainscribe-docusense-v1")
}

func TestStoreCommands(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "", "-c", cfgPath, "history", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes recorded.")

	out, err = run(t, "", "-c", cfgPath, "audit", "search")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit entries found.")

	out, err = run(t, "", "-c", cfgPath, "audit", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 audit entries.")

	out, err = run(t, "", "-c", cfgPath, "cache", "clear", "--expired")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 expired cache entries.")

	out, err = run(t, "", "-c", cfgPath, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:  0")
}

func TestOpenAppSchedulesJobs(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t))
	require.NoError(t, err)
	cfg.Budget.ResetSchedule = "0 0 0 * * *"

	a, err := openApp(context.Background(), cfg, setupLogger("error", &bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.NotNil(t, a.auditor)
	assert.NotNil(t, a.cache)

	e := scheduler.New(nil, nil)
	require.NoError(t, a.schedule(e))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()
	assert.False(t, e.Next("daily-reset").IsZero())
	assert.False(t, e.Next("cache-sweep").IsZero())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":3001", cfg.Listen)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
