package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/tools"
)

func TestEndpointStep(t *testing.T) {
	var received stepRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(Action{
			Type:       ActionToolCall,
			ToolName:   "store",
			ToolAction: "find_order",
			ToolArgs:   map[string]interface{}{"order_id": "A1"},
		})
	}))
	defer server.Close()

	a, err := newEndpoint(&Spec{ID: "dojo/test/remote", Kind: KindEndpoint, Impl: Impl{URL: server.URL}})
	require.NoError(t, err)

	history := []ast.Message{{Role: ast.RoleUser, Content: "find my order"}}
	published := []PublishedTool{
		{Name: "store", Description: "Storefront", Actions: []tools.ActionSpec{{Name: "find_order"}}},
	}

	action, err := a.Step(context.Background(), history, published)
	require.NoError(t, err)
	assert.Equal(t, ActionToolCall, action.Type)
	assert.Equal(t, "store", action.ToolName)
	assert.Equal(t, map[string]interface{}{"order_id": "A1"}, action.ToolArgs)

	// The service saw the full step document.
	require.Len(t, received.History, 1)
	assert.Equal(t, "find my order", received.History[0].Content)
	require.Len(t, received.Tools, 1)
	assert.Equal(t, "store", received.Tools[0].Name)
}

func TestEndpointStepErrors(t *testing.T) {
	t.Run("Server Error Status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "agent exploded", http.StatusInternalServerError)
		}))
		defer server.Close()

		a, err := newEndpoint(&Spec{ID: "dojo/test/remote", Impl: Impl{URL: server.URL}})
		require.NoError(t, err)
		_, err = a.Step(context.Background(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "agent exploded")
	})

	t.Run("Invalid Action Body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		a, err := newEndpoint(&Spec{ID: "dojo/test/remote", Impl: Impl{URL: server.URL}})
		require.NoError(t, err)
		_, err = a.Step(context.Background(), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid action response")
	})

	t.Run("Unreachable Endpoint", func(t *testing.T) {
		a, err := newEndpoint(&Spec{ID: "dojo/test/remote", Impl: Impl{URL: "http://127.0.0.1:1/step"}})
		require.NoError(t, err)
		_, err = a.Step(context.Background(), nil, nil)
		require.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "lon...", truncate("longer text", 3))
}
