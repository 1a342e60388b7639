package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasServe(t *testing.T) {
	root := GetRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
}

func TestRootCommandFlags(t *testing.T) {
	root := GetRootCmd()
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
	require.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, version, GetRootCmd().Version)
}
