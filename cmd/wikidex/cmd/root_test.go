package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: the help lists the pipeline commands
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "wikidex")
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "retrieve")
	assert.Contains(t, out, "watch")
	assert.Contains(t, out, "status")
}

func TestRootCmd_Version(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	// When: executing with --version
	err := cmd.Execute()

	// Then: the version template is used
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "wikidex version")
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// When: collecting registered subcommand names
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	// Then: every pipeline command is present
	for _, want := range []string{"ingest", "index", "retrieve", "eval", "watch", "status", "check", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestLoadConfig_DataDirFlagOverrides(t *testing.T) {
	// Given: the persistent --data-dir flag is set
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	oldDataDir := flagDataDir
	flagDataDir = "/tmp/wikidex-test-data"
	defer func() { flagDataDir = oldDataDir }()

	// When: loading the configuration
	cfg, err := loadConfig()

	// Then: the flag wins over the default data directory
	require.NoError(t, err)
	assert.Equal(t, "/tmp/wikidex-test-data", cfg.Stores.Dir)
}
