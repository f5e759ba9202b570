package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withVersion sets the root command version for the duration of the test.
func withVersion(t *testing.T, v string) {
	t.Helper()
	previous := GetVersion()
	SetVersion(v)
	t.Cleanup(func() { SetVersion(previous) })
}

func TestVersionCmd_Definition(t *testing.T) {
	c := newVersionCmd()

	assert.Equal(t, "version", c.Use)
	assert.Contains(t, c.Short, "appauth")
	assert.NotEmpty(t, c.Long)
	assert.NotNil(t, c.Run)
}

func TestVersionCmd_Output(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"release", "1.4.0", "appauth version 1.4.0\n"},
		{"dev build", "dev", "appauth version dev\n"},
		{"unset", "", "appauth version \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.version)

			out, err := executeRoot(t, "version")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestVersionCmd_Help(t *testing.T) {
	var out bytes.Buffer
	c := newVersionCmd()
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs([]string{"--help"})

	require.NoError(t, c.Execute())
	assert.Contains(t, out.String(), c.Long)
	assert.Contains(t, out.String(), "Usage:")
}
