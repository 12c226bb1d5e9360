package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "chainsync", cmd.Use)
	assert.Contains(t, cmd.Long, "ciphertext")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"status"}, {"append"}, {"push"}, {"pull"}, {"sync"}, {"serve"},
		{"key", "generate"}, {"key", "rotate"}, {"key", "verify"}, {"key", "purge"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestPullCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	pullCmd, _, err := cmd.Find([]string{"pull"})
	require.NoError(t, err)

	forceFlag := pullCmd.Flags().Lookup("force")
	require.NotNil(t, forceFlag)
	assert.Equal(t, "false", forceFlag.DefValue)

	pageFlag := pullCmd.Flags().Lookup("page-size")
	require.NotNil(t, pageFlag)
	assert.Equal(t, "0", pageFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	dbFlag := serveCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)

	listenFlag := serveCmd.Flags().Lookup("listen")
	require.NotNil(t, listenFlag)
	assert.Equal(t, "127.0.0.1:8888", listenFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
