package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/parser"
	"github.com/dojoai/dojo/internal/parser/schema"
)

func newTestValidateParser(t *testing.T) *parser.YAMLParser {
	t.Helper()
	p, err := parser.NewYAMLParser()
	require.NoError(t, err)
	return p
}

func TestValidateSingleFileValid(t *testing.T) {
	runCtx, _, _ := testRunContext()
	p := newTestValidateParser(t)

	outcome := validateSingleFile(runCtx, p, nil, "testdata/modules/refund.yaml", false)
	assert.True(t, outcome.Valid)
	assert.Empty(t, outcome.Errors)
}

func TestValidateSingleFileBroken(t *testing.T) {
	runCtx, _, _ := testRunContext()
	p := newTestValidateParser(t)

	outcome := validateSingleFile(runCtx, p, nil, "testdata/modules/broken.yaml", false)
	assert.False(t, outcome.Valid)
	require.NotEmpty(t, outcome.Errors)

	all := ""
	for _, e := range outcome.Errors {
		all += e + "\n"
	}
	assert.Contains(t, all, "invalid action: teleport")
	assert.Contains(t, all, "does_not_exist")
	assert.Contains(t, all, "invalid kind: vibes")
}

func TestValidateSingleFileMissing(t *testing.T) {
	runCtx, _, _ := testRunContext()
	p := newTestValidateParser(t)

	outcome := validateSingleFile(runCtx, p, nil, "testdata/modules/missing.yaml", false)
	assert.False(t, outcome.Valid)
}

func TestValidateWithSchema(t *testing.T) {
	runCtx, _, _ := testRunContext()
	p := newTestValidateParser(t)

	sv, err := schema.NewValidator()
	require.NoError(t, err)

	outcome := validateSingleFile(runCtx, p, sv, "testdata/modules/refund.yaml", false)
	assert.True(t, outcome.Valid, "errors: %v", outcome.Errors)
}

func TestValidateModulesSummary(t *testing.T) {
	setOutput(t, "json", true)
	runCtx, out, _ := testRunContext()

	summary := validateModules(runCtx, []string{
		"testdata/modules/refund.yaml",
		"testdata/modules/broken.yaml",
	})
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 1, summary.Invalid)

	var decoded ValidationSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, summary.Total, decoded.Total)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("id: x\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(nested, "c.yaml"), []byte("id: x\n"), 0o644))

	t.Run("directory requires recursive", func(t *testing.T) {
		_, err := collectFiles([]string{dir}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--recursive")
	})

	t.Run("recursive walks the tree", func(t *testing.T) {
		files, err := collectFiles([]string{dir}, true)
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("non-module file rejected", func(t *testing.T) {
		_, err := collectFiles([]string{filepath.Join(dir, "notes.txt")}, false)
		require.Error(t, err)
	})

	t.Run("missing path rejected", func(t *testing.T) {
		_, err := collectFiles([]string{filepath.Join(dir, "missing.yaml")}, false)
		require.Error(t, err)
	})
}
