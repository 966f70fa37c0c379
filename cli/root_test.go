package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbed/docbed/cli"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should expose the worker, server and migrate subcommands", func(t *testing.T) {
		root := cli.RootCmd()
		names := make([]string, 0)
		for _, sub := range root.Commands() {
			names = append(names, sub.Name())
		}
		assert.Contains(t, names, "worker")
		assert.Contains(t, names, "server")
		assert.Contains(t, names, "migrate")
	})
	t.Run("Should register the global flags", func(t *testing.T) {
		root := cli.RootCmd()
		require.NotNil(t, root.PersistentFlags().Lookup("config"))
		require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
		require.NotNil(t, root.PersistentFlags().Lookup("log-json"))
	})
}
