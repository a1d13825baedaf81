package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathdrill/internal/config"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/store"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	for flag := range flagKeys {
		fs.String(flag, "", "")
	}
	return fs
}

func TestBindFlags_OverrideConfig(t *testing.T) {
	v := config.NewViper()
	fs := newFlagSet()
	require.NoError(t, bindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{
		"--server", "https://drill.example.com",
		"--token", "secret",
		"--log-level", "debug",
		"--metrics-addr", ":9191",
	}))

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "https://drill.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9191", cfg.MetricsAddr)
}

func TestBindFlags_UnsetFlagsKeepDefaults(t *testing.T) {
	v := config.NewViper()
	fs := newFlagSet()
	require.NoError(t, bindFlags(v, fs))
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.BaseURL, cfg.Server.BaseURL)
}

func TestBindFlags_MissingFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	assert.Error(t, bindFlags(config.NewViper(), fs))
}

func TestResolveDBPath_Configured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	got, err := resolveDBPath(&config.Config{DB: path})
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.DirExists(t, filepath.Dir(path))
}

func TestResolveDBPath_Env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("MATHDRILL_DB", path)
	got, err := resolveDBPath(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "mathdrill")
}

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SnapshotRepo().Save(ctx, &store.SessionSnapshot{
		SessionID:   "sess-1",
		CurrentPage: 2,
		TotalPages:  3,
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.EventRepo().AppendRequest(ctx, store.RequestEventData{
		Op: delivery.OpSubmitAnswer, SessionID: "sess-1", Success: true,
	}))
	require.NoError(t, s.EventRepo().AppendAutosave(ctx, store.AutosaveEventData{
		SessionID: "sess-1", PageNumber: 2, SequenceNumber: 1, Value: "42",
		Outcome: store.OutcomeFailed, Attempts: 3, ErrorMessage: "server unavailable",
	}))
	require.NoError(t, s.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"history", "sess-1", "--db", dbPath})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.ExecuteContext(ctx))

	got := out.String()
	assert.Contains(t, got, "page 2 of 3 (in progress)")
	assert.Contains(t, got, delivery.OpSubmitAnswer)
	assert.Contains(t, got, "sent 0   failed 1   dropped 0   total 1")
	assert.Contains(t, got, "server unavailable")
}
