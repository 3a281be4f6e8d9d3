package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"upload", "advisors", "sync", "complete", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "emla-tracker", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAdvisorsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range advisorsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["load"])
	assert.True(t, names["list"])
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd      string
		flag     string
		defValue string
	}{
		{"upload", "file", ""},
		{"upload", "type", ""},
		{"upload", "no-export", "false"},
		{"complete", "id", "[]"},
		{"serve", "port", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "%s should have --%s flag", tt.cmd, tt.flag)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}

	require.NotNil(t, advisorsLoadCmd.Flags().Lookup("file"))
}
