package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func versionOutput(t *testing.T, format string) string {
	t.Helper()
	setOutput(t, format, true)

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	showVersion(cmd)
	return out.String()
}

func TestShowVersionJSON(t *testing.T) {
	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(versionOutput(t, "json")), &info))

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
}

func TestShowVersionYAML(t *testing.T) {
	var info VersionInfo
	require.NoError(t, yaml.Unmarshal([]byte(versionOutput(t, "yaml")), &info))

	assert.Equal(t, Version, info.Version)
}

func TestShowVersionPretty(t *testing.T) {
	assert.Contains(t, versionOutput(t, "pretty"), Version)
}
