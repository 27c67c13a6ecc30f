package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRootCmd(t *testing.T) {
	c := testConfig(t)
	root := SetupRootCmd(&c)

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"run", "login", "health", "status"})
	assert.Same(t, &c, KeeperConfig)

	login, _, err := root.Find([]string{"login"})
	require.NoError(t, err)
	assert.NotNil(t, login.Flags().Lookup("verify"))
	assert.NotNil(t, login.Flags().Lookup("verify-only"))

	status, _, err := root.Find([]string{"status"})
	require.NoError(t, err)
	assert.NotNil(t, status.Flags().ShorthandLookup("n"))
}
