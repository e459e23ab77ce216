package expression

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionRegistry_CollectionFunctions(t *testing.T) {
	registry := NewFunctionRegistry()

	testCases := []struct {
		name     string
		function string
		args     []interface{}
		expected interface{}
		wantErr  bool
	}{
		{
			name:     "len of string",
			function: "len",
			args:     []interface{}{"hello"},
			expected: float64(5),
		},
		{
			name:     "len counts runes not bytes",
			function: "len",
			args:     []interface{}{"héllo"},
			expected: float64(5),
		},
		{
			name:     "len of list",
			function: "len",
			args:     []interface{}{[]interface{}{1, 2, 3}},
			expected: float64(3),
		},
		{
			name:     "len of map",
			function: "len",
			args:     []interface{}{map[string]interface{}{"a": 1, "b": 2}},
			expected: float64(2),
		},
		{
			name:     "len of nil",
			function: "len",
			args:     []interface{}{nil},
			expected: float64(0),
		},
		{
			name:     "len of number errors",
			function: "len",
			args:     []interface{}{42},
			wantErr:  true,
		},
		{
			name:     "sum of list",
			function: "sum",
			args:     []interface{}{[]interface{}{1, 2, 3.5}},
			expected: 6.5,
		},
		{
			name:     "sum variadic",
			function: "sum",
			args:     []interface{}{1, 2, 3},
			expected: float64(6),
		},
		{
			name:     "sum of empty list is zero",
			function: "sum",
			args:     []interface{}{[]interface{}{}},
			expected: float64(0),
		},
		{
			name:     "any with one truthy",
			function: "any",
			args:     []interface{}{[]interface{}{false, 0, "x"}},
			expected: true,
		},
		{
			name:     "any with none truthy",
			function: "any",
			args:     []interface{}{[]interface{}{false, 0, ""}},
			expected: false,
		},
		{
			name:     "any of empty list",
			function: "any",
			args:     []interface{}{[]interface{}{}},
			expected: false,
		},
		{
			name:     "all truthy",
			function: "all",
			args:     []interface{}{[]interface{}{true, 1, "x"}},
			expected: true,
		},
		{
			name:     "all with one falsy",
			function: "all",
			args:     []interface{}{[]interface{}{true, 0}},
			expected: false,
		},
		{
			name:     "all of empty list",
			function: "all",
			args:     []interface{}{[]interface{}{}},
			expected: true,
		},
		{
			name:     "min variadic",
			function: "min",
			args:     []interface{}{3, 1, 2},
			expected: float64(1),
		},
		{
			name:     "min of list",
			function: "min",
			args:     []interface{}{[]interface{}{3.5, 1.5}},
			expected: 1.5,
		},
		{
			name:     "min of empty list errors",
			function: "min",
			args:     []interface{}{[]interface{}{}},
			wantErr:  true,
		},
		{
			name:     "max variadic",
			function: "max",
			args:     []interface{}{3, 7, 2},
			expected: float64(7),
		},
		{
			name:     "max of empty list errors",
			function: "max",
			args:     []interface{}{[]interface{}{}},
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := registry.Call(tc.function, tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestFunctionRegistry_NumericFunctions(t *testing.T) {
	registry := NewFunctionRegistry()

	testCases := []struct {
		name     string
		function string
		args     []interface{}
		expected interface{}
		wantErr  bool
	}{
		{
			name:     "abs of negative",
			function: "abs",
			args:     []interface{}{-4.5},
			expected: 4.5,
		},
		{
			name:     "abs of positive",
			function: "abs",
			args:     []interface{}{4.5},
			expected: 4.5,
		},
		{
			name:     "abs requires one argument",
			function: "abs",
			args:     []interface{}{1, 2},
			wantErr:  true,
		},
		{
			name:     "round to integer",
			function: "round",
			args:     []interface{}{2.6},
			expected: float64(3),
		},
		{
			name:     "round to two places",
			function: "round",
			args:     []interface{}{900.014, 2},
			expected: 900.01,
		},
		{
			name:     "round takes at most two arguments",
			function: "round",
			args:     []interface{}{1.5, 2, 3},
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := registry.Call(tc.function, tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestFunctionRegistry_CoercionFunctions(t *testing.T) {
	registry := NewFunctionRegistry()

	testCases := []struct {
		name     string
		function string
		args     []interface{}
		expected interface{}
	}{
		{
			name:     "int truncates toward zero",
			function: "int",
			args:     []interface{}{2.9},
			expected: float64(2),
		},
		{
			name:     "int truncates negative toward zero",
			function: "int",
			args:     []interface{}{-2.9},
			expected: float64(-2),
		},
		{
			name:     "int parses string",
			function: "int",
			args:     []interface{}{"42"},
			expected: float64(42),
		},
		{
			name:     "float parses string",
			function: "float",
			args:     []interface{}{"3.5"},
			expected: 3.5,
		},
		{
			name:     "str of number",
			function: "str",
			args:     []interface{}{42},
			expected: "42",
		},
		{
			name:     "str of bool",
			function: "str",
			args:     []interface{}{true},
			expected: "true",
		},
		{
			name:     "bool of empty string",
			function: "bool",
			args:     []interface{}{""},
			expected: false,
		},
		{
			name:     "bool of non-zero",
			function: "bool",
			args:     []interface{}{0.5},
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := registry.Call(tc.function, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestFunctionRegistry_UnknownFunction(t *testing.T) {
	registry := NewFunctionRegistry()

	_, err := registry.Call("explode", []interface{}{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")

	assert.False(t, registry.Has("explode"))
	assert.True(t, registry.Has("len"))
}

func TestFunctionRegistry_ListFunctions(t *testing.T) {
	registry := NewFunctionRegistry()
	defs := registry.ListFunctions()

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
		assert.NotEmpty(t, def.Description, "function %s has no description", def.Name)
		assert.NotEmpty(t, def.Examples, "function %s has no examples", def.Name)
	}

	assert.True(t, sort.StringsAreSorted(names))

	expected := []string{"abs", "all", "any", "bool", "float", "int", "len", "max", "min", "round", "str", "sum"}
	assert.Equal(t, expected, names)
}
