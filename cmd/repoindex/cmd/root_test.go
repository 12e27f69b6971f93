package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_LoggingHonorsConfigFilePath(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "repoindex.log")
	cfgPath := filepath.Join(dir, "repoindex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"logging:\n  level: debug\n  file_path: "+logPath+"\n"), 0o644))

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "version"})
	require.NoError(t, root.Execute())

	// The configured log file was created and written to.
	info, err := os.Stat(logPath)
	require.NoError(t, err, "log file from config should exist")
	assert.Greater(t, info.Size(), int64(0))
}

func TestRootCmd_ContextReachesSubcommands(t *testing.T) {
	var seen context.Context
	root := NewRootCmd()
	root.AddCommand(&cobra.Command{
		Use: "ctxcheck",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seen = cmd.Context()
			return nil
		},
	})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"ctxcheck"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, root.ExecuteContext(ctx))

	require.NotNil(t, seen)
	assert.ErrorIs(t, seen.Err(), context.Canceled)
}
