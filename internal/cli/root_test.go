package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()

	byName := map[string]*cobra.Command{}
	for _, c := range root.Commands() {
		byName[c.Name()] = c
	}
	require.Contains(t, byName, "consume")
	require.Contains(t, byName, "publish")
	require.Contains(t, byName, "dashboard")

	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, byName["consume"].Flags().Lookup("max"))
	require.NotNil(t, byName["publish"].Flags().Lookup("file"))
}

func TestPublishRequiresFileFlag(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	root.SetArgs([]string{"publish"})
	require.Error(t, root.Execute())
}
