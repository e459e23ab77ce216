package tools

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool" }
func (s *stubTool) Actions() []ActionSpec {
	return []ActionSpec{{Name: "poke", Description: "Poke the stub"}}
}

func (s *stubTool) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) Result {
	return OK(map[string]interface{}{"action": action})
}

func stubConstructor(ref *ast.ToolRef) (Tool, error) {
	return &stubTool{name: ref.Name}, nil
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("stub", stubConstructor))

	err := reg.Register("stub", stubConstructor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	_, ok := reg.Lookup("stub")
	assert.True(t, ok)
	_, ok = reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestRegistryTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("zeta", stubConstructor))
	require.NoError(t, reg.Register("alpha", stubConstructor))

	assert.Equal(t, []string{"alpha", "zeta"}, reg.Types())
}

func TestRegistryNew(t *testing.T) {
	t.Run("Builds Instance", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register("stub", stubConstructor))

		tool, err := reg.New(&ast.ToolRef{Name: "my_stub", Type: "stub"})
		require.NoError(t, err)
		assert.Equal(t, "my_stub", tool.Name())
	})

	t.Run("Unknown Type", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.New(&ast.ToolRef{Name: "x", Type: "ghost"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownToolType))
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("Constructor Failure", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register("broken", func(ref *ast.ToolRef) (Tool, error) {
			return nil, fmt.Errorf("bad config")
		}))

		_, err := reg.New(&ast.ToolRef{Name: "b1", Type: "broken"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `constructing tool "b1"`)
		assert.Contains(t, err.Error(), "bad config")
	})
}

func TestRegistryFromEnvironment(t *testing.T) {
	t.Run("Nil Environment", func(t *testing.T) {
		reg := NewRegistry()
		instances, err := reg.FromEnvironment(nil)
		require.NoError(t, err)
		assert.Empty(t, instances)
	})

	t.Run("One Instance Per Reference", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register("stub", stubConstructor))

		env := &ast.Environment{Tools: []*ast.ToolRef{
			{Name: "left", Type: "stub"},
			{Name: "right", Type: "stub"},
		}}

		instances, err := reg.FromEnvironment(env)
		require.NoError(t, err)
		require.Len(t, instances, 2)
		assert.Equal(t, "left", instances["left"].Name())
		assert.Equal(t, "right", instances["right"].Name())
		assert.NotSame(t, instances["left"], instances["right"])
	})

	t.Run("Duplicate Name", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register("stub", stubConstructor))

		env := &ast.Environment{Tools: []*ast.ToolRef{
			{Name: "twin", Type: "stub"},
			{Name: "twin", Type: "stub"},
		}}

		_, err := reg.FromEnvironment(env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate tool name: twin")
	})

	t.Run("Unresolvable Type Fails Whole Set", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register("stub", stubConstructor))

		env := &ast.Environment{Tools: []*ast.ToolRef{
			{Name: "ok", Type: "stub"},
			{Name: "nope", Type: "ghost"},
		}}

		_, err := reg.FromEnvironment(env)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownToolType))
		assert.Contains(t, err.Error(), `tool "nope"`)
	})
}
