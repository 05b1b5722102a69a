package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/facegate/internal/facegate/store/memory"
	"github.com/BrandonDHaskell/facegate/internal/facegate/types"
)

func TestPrintIdentities(t *testing.T) {
	color.NoColor = true

	s := memory.NewIdentityStore(types.Enrollment{"IlleeSilva": 2, "Breno": 1})
	var out bytes.Buffer

	require.NoError(t, printIdentities(context.Background(), &out, s, []string{"Breno"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "LABEL")
	assert.Regexp(t, `^1\s+Breno\s+yes`, lines[1])
	assert.Regexp(t, `^2\s+IlleeSilva\s+no`, lines[2])
}

func TestPrintIdentities_Empty(t *testing.T) {
	s := memory.NewIdentityStore(types.Enrollment{"Breno": 1})
	require.NoError(t, s.Remove(context.Background(), "Breno"))

	var out bytes.Buffer
	require.NoError(t, printIdentities(context.Background(), &out, s, nil))
	assert.Equal(t, "No identities enrolled\n", out.String())
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, out.String(), "facegate "+Version)
}

func TestEnrollCommands_SQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FACEGATE_DB_PATH", filepath.Join(dir, "facegate.db"))
	t.Setenv("FACEGATE_AUTHORIZED", "Breno")

	yamlPath := filepath.Join(dir, "face_names.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("Breno: 1\nIlleeSilva: 2\n"), 0o644))

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, rootCmd.ExecuteContext(ctx))
		return out.String()
	}

	assert.Contains(t, run("enroll", "import", yamlPath), "Imported 2 identities")
	assert.Contains(t, run("enroll", "add", "Carla", "3"), "Enrolled Carla as label 3")
	assert.Contains(t, run("enroll", "remove", "IlleeSilva"), "Removed IlleeSilva")

	color.NoColor = true
	list := run("enroll", "list")
	assert.Contains(t, list, "Breno")
	assert.Contains(t, list, "Carla")
	assert.NotContains(t, list, "IlleeSilva")
}
