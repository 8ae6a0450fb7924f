package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"ingest", "validate", "show", "list", "trace", "export", "replay", "delete", "test"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"verbose", "format", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestRootCommandInvalidFormat(t *testing.T) {
	dbPath := tempDB(t)

	_, _, err := execute(t, NewRootCommand(), "list", "--db", dbPath, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommandMissingConfig(t *testing.T) {
	_, _, err := execute(t, NewRootCommand(), "list", "--config", "/nonexistent/dmpsync.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommandInvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, "database:\n  driver: oracle\n")

	_, _, err := execute(t, NewRootCommand(), "list", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommandDatabaseFromConfig(t *testing.T) {
	dbPath := tempDB(t)
	seedPlan(t, dbPath, "soil_cores.json", "")
	cfgPath := writeConfig(t, "database:\n  driver: sqlite3\n  dsn: "+dbPath+"\n")

	out, _, err := execute(t, NewRootCommand(), "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Soil Cores 2025")
}

func TestRootOptionsConfigIsCached(t *testing.T) {
	opts := &RootOptions{Format: "text"}

	first, err := opts.Config()
	require.NoError(t, err)
	opts.ConfigPath = "/nonexistent/dmpsync.yaml"
	second, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
