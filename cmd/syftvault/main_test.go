package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/vault"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))

	aborted := &vault.PhaseError{
		Phase: vault.PhasePersistIndex,
		Err:   fmt.Errorf("%w after %d attempt(s): %w", manifest.ErrSaveAborted, 1, errors.New("timeout")),
	}
	assert.Equal(t, exitIndexNotSaved, exitCode(aborted))
}

func subcommand(t *testing.T, name string, args ...string) *cobra.Command {
	t.Helper()
	cmd, _, err := newRootCmd().Find([]string{name})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_FlagsOverrideFileAndEnv(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
root: file:///from/file
retries: 4
exclude:
  - "*.tmp"
`), 0o644))

	t.Setenv("SYFTVAULT_PASSPHRASE", "from-env")
	t.Setenv("SYFTVAULT_KNOWN_HOSTS", "/etc/ssh/known_hosts")

	cmd := subcommand(t, "backup",
		"--config", configFile,
		"--to", "mem://flag",
		"-x", "node_modules", "-x", "{a,b}.log",
		"--dry-run",
	)
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, configFile, cfg.Path)
	assert.Equal(t, "mem://flag", cfg.RootURL)
	assert.Equal(t, "from-env", cfg.Passphrase)
	assert.Equal(t, "/etc/ssh/known_hosts", cfg.KnownHosts)
	assert.Equal(t, 4, cfg.Retries)
	assert.Equal(t, []string{"node_modules", "{a,b}.log"}, cfg.Exclude)
	assert.True(t, cfg.DryRun)
	assert.False(t, cfg.HashCache)
}

func TestLoadConfig_FromFlagOnRestore(t *testing.T) {
	cmd := subcommand(t, "restore",
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--from", "s3://bucket/prefix",
		"--retries", "1",
	)
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/prefix", cfg.RootURL)
	assert.Equal(t, 1, cfg.Retries)
}

// execute runs the CLI in process and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return stripANSI(out.String()), err
}

func TestBackupListRestore(t *testing.T) {
	state := t.TempDir()
	noConfig := filepath.Join(state, "none.yaml")
	remote := "mem://cli-" + uuid.NewString()[:8]

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("remember the milk"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "build", "out.bin"), []byte{1, 2, 3}, 0o644))

	common := []string{"--config", noConfig, "--state-dir", state}

	out, err := execute(t, append([]string{"backup", src, "--to", remote, "-x", "build"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "+ "+filepath.ToSlash(filepath.Join(src, "notes.txt")))
	assert.NotContains(t, out, "out.bin")

	out, err = execute(t, append([]string{"backup", src, "--to", remote, "-x", "build"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Remote is up to date")

	out, err = execute(t, append([]string{"list", "--from", remote, "-o", "json"}, common...)...)
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	var files []string
	for _, e := range entries {
		if e.Kind == "file" {
			files = append(files, e.Path)
		}
	}
	assert.Equal(t, []string{filepath.ToSlash(filepath.Join(src, "notes.txt"))}, files)

	dest := t.TempDir()
	out, err = execute(t, append([]string{"restore", "notes.txt", "--from", remote, "--dest", dest}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "restored 1")

	data, err := os.ReadFile(vault.DestPath(dest, filepath.ToSlash(filepath.Join(src, "notes.txt"))))
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(data))
}

func TestRestore_ArgumentErrors(t *testing.T) {
	_, err := execute(t, "restore", "--from", "mem://x", "--all", "a.txt")
	assert.ErrorContains(t, err, "either --all or paths")

	_, err = execute(t, "restore", "--from", "mem://x")
	assert.ErrorContains(t, err, "nothing to restore")
}

func TestList_UnknownFormat(t *testing.T) {
	_, err := execute(t, "list", "--from", "mem://x", "-o", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestCLI_ExitCodes(t *testing.T) {
	state := t.TempDir()

	out, code := runCLI(t, "version")
	assert.Equal(t, exitOK, code, out)

	out, code = runCLI(t, "backup", state, "--state-dir", state)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "root URL is required")

	out, code = runCLI(t, "backup", state, "--to", "gopher://host/x", "--state-dir", state)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "Error:")
}
