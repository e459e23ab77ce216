package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/session"
)

const testModuleYAML = `id: retail.refund_basic
description: Customer asks for a refund on a delivered order
variables:
  - name: store_name
    default: Lemonade & Co
agent_config:
  system_prompt: You work the register at {{store_name}}.
environment:
  sandbox_type: local
  tools:
    - name: shopify
      type: mock_shopify
      config:
        initial_orders:
          ORD123:
            id: ORD123
            status: Delivered
            customer_email: dana@example.com
            total: 99.99
  initial_state:
    cash_balance: 1000.0
steps:
  - id: ask
    action: inject_user
    params:
      content: I want a refund for order ORD123.
  - id: reply
    action: await_agent
evaluation:
  - name: refunded
    kind: tool_called
    tool: shopify
    action: refund_order
`

const interactiveModuleYAML = `id: interactive.hold
description: Waits for a live user before the agent answers
environment:
  sandbox_type: local
  tools:
    - name: store
      type: mock_store
steps:
  - id: hold
    action: await_user
    params:
      prompt: What do you need?
  - id: reply
    action: await_agent
`

const cashierAgentYAML = `id: dojo/test/cashier
name: Scripted Cashier
kind: scripted
impl:
  script:
    - type: tool_call
      tool_name: shopify
      tool_action: refund_order
      tool_args:
        order_id: ORD123
    - type: message
      content: Refund issued, sorry for the trouble.
`

const greeterAgentYAML = `id: dojo/test/greeter
name: Scripted Greeter
kind: scripted
impl:
  script:
    - type: message
      content: Happy to help.
`

// findAvailablePort finds an available port for testing
func findAvailablePort() int {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 8080 // fallback port
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// Test suite setup
type ServerTestSuite struct {
	server      *Server
	tempDir     string
	moduleFiles []string
	config      *Config
}

func setupTestSuite(t *testing.T) *ServerTestSuite {
	tempDir, err := os.MkdirTemp("", "dojo-server-test-*")
	require.NoError(t, err)

	// Create test module files
	refundFile := filepath.Join(tempDir, "refund.yaml")
	err = os.WriteFile(refundFile, []byte(testModuleYAML), 0644)
	require.NoError(t, err)

	holdFile := filepath.Join(tempDir, "hold.yaml")
	err = os.WriteFile(holdFile, []byte(interactiveModuleYAML), 0644)
	require.NoError(t, err)

	moduleFiles := []string{refundFile, holdFile}

	// Create test agent specs
	agentsDir := filepath.Join(tempDir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0755))
	err = os.WriteFile(filepath.Join(agentsDir, "cashier.yaml"), []byte(cashierAgentYAML), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(agentsDir, "greeter.yaml"), []byte(greeterAgentYAML), 0644)
	require.NoError(t, err)

	// Find available port for testing
	testPort := findAvailablePort()

	config := &Config{
		Host:          "127.0.0.1",
		Port:          testPort,
		MaxSessions:   4,
		EnableMetrics: true,
		EnableCORS:    true,
		ModuleFiles:   moduleFiles,
		AgentDirs:     []string{agentsDir},
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		IdleTimeout:   30 * time.Second,
	}

	server, err := New(config)
	require.NoError(t, err)

	// Use separate metrics registry for tests
	registry, err := engine.DefaultToolRegistry()
	require.NoError(t, err)
	server.sessions = session.NewManagerWithRegistry(registry, config.MaxSessions, prometheus.NewRegistry())

	err = server.LoadModules()
	require.NoError(t, err)

	err = server.LoadAgents()
	require.NoError(t, err)

	return &ServerTestSuite{
		server:      server,
		tempDir:     tempDir,
		moduleFiles: moduleFiles,
		config:      config,
	}
}

func (suite *ServerTestSuite) cleanup(t *testing.T) {
	if suite.server.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		suite.server.Stop(ctx)
	}
	os.RemoveAll(suite.tempDir)
}

func (suite *ServerTestSuite) startServerInBackground(t *testing.T) string {
	// Start server in background
	err := suite.server.Start()
	require.NoError(t, err)

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return suite.server.GetAddr()
}

// dialSession opens a WebSocket connection to the interactive endpoint.
func dialSession(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws/session", addr), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads the next frame from the connection.
func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// collectUntil reads frames until one of the wanted type arrives and
// returns everything read, the wanted frame last.
func collectUntil(t *testing.T, conn *websocket.Conn, want string) []serverFrame {
	t.Helper()
	var frames []serverFrame
	for {
		frame := readFrame(t, conn)
		frames = append(frames, frame)
		if frame.Type == want {
			return frames
		}
	}
}

// Integration Tests

func TestServerIntegration_StartupAndShutdown(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	// Test server creation
	assert.NotNil(t, suite.server)
	assert.Equal(t, 2, suite.server.GetModuleCount())

	// Test server start
	addr := suite.startServerInBackground(t)
	assert.Contains(t, addr, "127.0.0.1:")

	// Test health endpoint
	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	err = json.NewDecoder(resp.Body).Decode(&health)
	require.NoError(t, err)

	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(2), health["modules_loaded"])
	assert.Equal(t, float64(2), health["agents_loaded"])
	assert.Equal(t, float64(0), health["active_sessions"])
}

func TestServerIntegration_ListModules(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	// Test list modules endpoint
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)

	modules, ok := result["modules"].(map[string]any)
	if !ok {
		t.Logf("Result: %+v", result)
		t.Fatalf("modules is not a map[string]any: %T", result["modules"])
	}
	assert.Len(t, modules, 2)
	assert.Equal(t, float64(2), result["count"])

	refund, ok := modules["retail.refund_basic"].(map[string]any)
	if !ok {
		t.Fatalf("retail.refund_basic not found or wrong type: %+v", modules)
	}
	assert.Equal(t, "Customer asks for a refund on a delivered order", refund["description"])
	assert.Equal(t, float64(2), refund["steps"])
	assert.Equal(t, float64(1), refund["checks"])
	assert.Equal(t, []any{"shopify"}, refund["tools"])

	hold, ok := modules["interactive.hold"].(map[string]any)
	if !ok {
		t.Fatalf("interactive.hold not found or wrong type: %+v", modules)
	}
	assert.Equal(t, []any{"store"}, hold["tools"])
}

func TestServerIntegration_GetModule(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules/retail.refund_basic", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var module map[string]any
	err = json.NewDecoder(resp.Body).Decode(&module)
	require.NoError(t, err)

	assert.Equal(t, "retail.refund_basic", module["id"])
	steps, ok := module["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)

	environment, ok := module["environment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "local", environment["sandbox_type"])
}

func TestServerIntegration_GetModule_NotFound(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules/non-existent", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(responseBody), "Module 'non-existent' not found")
}

func TestServerIntegration_ListAgents(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/agents", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)

	agents, ok := result["agents"].([]any)
	require.True(t, ok)
	assert.Len(t, agents, 2)
	assert.Equal(t, float64(2), result["count"])

	ids := make([]string, 0, len(agents))
	for _, raw := range agents {
		agent := raw.(map[string]any)
		ids = append(ids, agent["id"].(string))
		assert.Equal(t, "scripted", agent["kind"])
	}
	assert.Contains(t, ids, "dojo/test/cashier")
	assert.Contains(t, ids, "dojo/test/greeter")
}

func TestServerIntegration_Sessions_EmptyAndNotFound(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	// No sessions tracked yet
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/sessions", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)
	assert.Equal(t, float64(0), result["count"])

	// Unknown session id
	resp, err = http.Get(fmt.Sprintf("http://%s/api/v1/sessions/no-such-session", addr))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting an unknown session is a 404 too
	req, err := http.NewRequest("DELETE", fmt.Sprintf("http://%s/api/v1/sessions/no-such-session", addr), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(responseBody), "Session 'no-such-session' not found")
}

func TestServerIntegration_WebSocketSession_RunToCompletion(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	err := conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "retail.refund_basic",
		AgentID:  "dojo/test/cashier",
	})
	require.NoError(t, err)

	started := readFrame(t, conn)
	require.Equal(t, frameStarted, started.Type)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, "retail.refund_basic", started.ModuleID)
	assert.Equal(t, "dojo/test/cashier", started.AgentID)

	frames := collectUntil(t, conn, frameCompleted)

	// The scripted run produces user, tool_call, tool_result, and agent
	// events before the terminal frame.
	seen := make(map[string]bool)
	for _, frame := range frames {
		if frame.Type == frameEvent {
			assert.Equal(t, started.SessionID, frame.SessionID)
			seen[string(frame.EventType)] = true
		}
	}
	assert.True(t, seen["user"], "expected a user event, got %v", seen)
	assert.True(t, seen["tool_call"], "expected a tool_call event, got %v", seen)
	assert.True(t, seen["tool_result"], "expected a tool_result event, got %v", seen)
	assert.True(t, seen["agent"], "expected an agent event, got %v", seen)

	completed := frames[len(frames)-1]
	assert.Equal(t, started.SessionID, completed.SessionID)

	evaluation, ok := completed.Evaluation.(map[string]any)
	require.True(t, ok, "evaluation is not a map: %T", completed.Evaluation)
	assert.Equal(t, "ok", evaluation["status"])
	assert.Equal(t, float64(1), evaluation["score"])

	checks, ok := evaluation["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, checks["refunded"])

	// The session stays tracked while the connection is open
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/sessions/%s", addr, started.SessionID))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var detail map[string]any
	err = json.NewDecoder(resp.Body).Decode(&detail)
	require.NoError(t, err)
	assert.Equal(t, "completed", detail["status"])
	assert.Contains(t, detail, "result")

	// Disconnecting retires it
	conn.Close()
	require.Eventually(t, func() bool {
		return len(suite.server.sessions.List()) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServerIntegration_WebSocketSession_MessageRouting(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	err := conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "interactive.hold",
		AgentID:  "dojo/test/greeter",
	})
	require.NoError(t, err)

	started := readFrame(t, conn)
	require.Equal(t, frameStarted, started.Type)

	frames := collectUntil(t, conn, frameAwaitingInput)
	awaiting := frames[len(frames)-1]
	assert.Equal(t, "What do you need?", awaiting.Prompt)
	assert.Equal(t, started.SessionID, awaiting.SessionID)

	// The suspended session is visible over REST
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/sessions/%s", addr, started.SessionID))
	require.NoError(t, err)
	defer resp.Body.Close()

	var detail map[string]any
	err = json.NewDecoder(resp.Body).Decode(&detail)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_user", detail["status"])

	// Route a live user message into the run
	err = conn.WriteJSON(clientFrame{Type: frameMessage, Content: "Where are the lemons?"})
	require.NoError(t, err)

	frames = collectUntil(t, conn, frameCompleted)
	var contents []string
	for _, frame := range frames {
		if frame.Type == frameEvent && frame.EventType == "user" {
			contents = append(contents, fmt.Sprintf("%v", frame.Payload["content"]))
		}
	}
	assert.Contains(t, contents, "Where are the lemons?")
}

func TestServerIntegration_WebSocketSession_Inject(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	err := conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "interactive.hold",
		AgentID:  "dojo/test/greeter",
	})
	require.NoError(t, err)

	started := readFrame(t, conn)
	require.Equal(t, frameStarted, started.Type)
	collectUntil(t, conn, frameAwaitingInput)

	// Trigger a store event mid-session
	err = conn.WriteJSON(clientFrame{Type: frameInject, Tool: "store", Event: "walk_away"})
	require.NoError(t, err)

	injected := readFrame(t, conn)
	require.Equal(t, frameInjected, injected.Type)
	assert.Equal(t, started.SessionID, injected.SessionID)

	data, ok := injected.Data.(map[string]any)
	require.True(t, ok, "injected data is not a map: %T", injected.Data)
	assert.Contains(t, fmt.Sprintf("%v", data["message"]), "leave")

	// Injecting into an absent tool is an error notice, not a close
	err = conn.WriteJSON(clientFrame{Type: frameInject, Tool: "ghost", Event: "walk_away"})
	require.NoError(t, err)

	errFrame := readFrame(t, conn)
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Message, "not found")

	// The session is still live
	err = conn.WriteJSON(clientFrame{Type: frameMessage, Content: "sorry, done now"})
	require.NoError(t, err)
	collectUntil(t, conn, frameCompleted)
}

func TestServerIntegration_WebSocketSession_PauseResume(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	err := conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "interactive.hold",
		AgentID:  "dojo/test/greeter",
	})
	require.NoError(t, err)

	started := readFrame(t, conn)
	require.Equal(t, frameStarted, started.Type)
	collectUntil(t, conn, frameAwaitingInput)

	err = conn.WriteJSON(clientFrame{Type: framePause})
	require.NoError(t, err)
	paused := readFrame(t, conn)
	assert.Equal(t, framePaused, paused.Type)
	assert.Equal(t, started.SessionID, paused.SessionID)

	// Pausing twice is refused
	err = conn.WriteJSON(clientFrame{Type: framePause})
	require.NoError(t, err)
	errFrame := readFrame(t, conn)
	assert.Equal(t, frameError, errFrame.Type)
	assert.Contains(t, errFrame.Message, "already paused")

	err = conn.WriteJSON(clientFrame{Type: frameResume})
	require.NoError(t, err)
	resumed := readFrame(t, conn)
	assert.Equal(t, frameResumed, resumed.Type)

	err = conn.WriteJSON(clientFrame{Type: frameMessage, Content: "carry on"})
	require.NoError(t, err)
	collectUntil(t, conn, frameCompleted)
}

func TestServerIntegration_WebSocketSession_ErrorNotices(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	// Malformed JSON
	err := conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	require.NoError(t, err)
	frame := readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Equal(t, "invalid JSON", frame.Message)

	// Unknown frame type
	err = conn.WriteJSON(clientFrame{Type: "telepathy"})
	require.NoError(t, err)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Contains(t, frame.Message, `unknown message type "telepathy"`)

	// Message without a session
	err = conn.WriteJSON(clientFrame{Type: frameMessage, Content: "hello?"})
	require.NoError(t, err)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Equal(t, "no active session", frame.Message)

	// Start without a module id
	err = conn.WriteJSON(clientFrame{Type: frameStart})
	require.NoError(t, err)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Equal(t, "module_id is required", frame.Message)

	// Unknown module
	err = conn.WriteJSON(clientFrame{Type: frameStart, ModuleID: "no.such.module"})
	require.NoError(t, err)
	frame = readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Contains(t, frame.Message, `module "no.such.module" not found`)

	// The connection survived all of it
	err = conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "retail.refund_basic",
		AgentID:  "dojo/test/cashier",
	})
	require.NoError(t, err)
	frame = readFrame(t, conn)
	assert.Equal(t, frameStarted, frame.Type)
	collectUntil(t, conn, frameCompleted)
}

func TestServerIntegration_WebSocketSession_Restart(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)
	conn := dialSession(t, addr)

	// First session suspends on await_user
	err := conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "interactive.hold",
		AgentID:  "dojo/test/greeter",
	})
	require.NoError(t, err)
	first := readFrame(t, conn)
	require.Equal(t, frameStarted, first.Type)
	collectUntil(t, conn, frameAwaitingInput)

	// Starting a second session on the same connection retires the first
	err = conn.WriteJSON(clientFrame{
		Type:     frameStart,
		ModuleID: "retail.refund_basic",
		AgentID:  "dojo/test/cashier",
	})
	require.NoError(t, err)
	second := readFrame(t, conn)
	require.Equal(t, frameStarted, second.Type)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	collectUntil(t, conn, frameCompleted)

	infos := suite.server.sessions.List()
	require.Len(t, infos, 1)
	assert.Equal(t, second.SessionID, infos[0].ID)
}

func TestServerIntegration_RateLimit(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "dojo-ratelimit-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	moduleFile := filepath.Join(tempDir, "refund.yaml")
	err = os.WriteFile(moduleFile, []byte(testModuleYAML), 0644)
	require.NoError(t, err)

	config := &Config{
		Host:                 "127.0.0.1",
		Port:                 findAvailablePort(),
		MaxSessions:          4,
		EnableCORS:           true,
		ModuleFiles:          []string{moduleFile},
		RequestsPerMinute:    3,
		RequestsPerHour:      100,
		SessionStartsPerHour: 10,
	}

	server, err := New(config)
	require.NoError(t, err)

	registry, err := engine.DefaultToolRegistry()
	require.NoError(t, err)
	server.sessions = session.NewManagerWithRegistry(registry, config.MaxSessions, prometheus.NewRegistry())

	require.NoError(t, server.LoadModules())
	require.NoError(t, server.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	addr := server.GetAddr()

	// The first three requests pass and carry remaining counts
	for i := 0; i < 3; i++ {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules", addr))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, fmt.Sprintf("%d", 2-i), resp.Header.Get("X-RateLimit-Remaining-Minute"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining-Hour"))
	}

	// The fourth is rejected
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(responseBody), "Rate limit exceeded: 3 requests per minute")

	// Health is outside the limited surface
	for i := 0; i < 5; i++ {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestServerIntegration_CORS_Headers(t *testing.T) {
	suite := setupTestSuite(t)
	defer suite.cleanup(t)

	addr := suite.startServerInBackground(t)

	// Test CORS preflight request
	req, err := http.NewRequest("OPTIONS", fmt.Sprintf("http://%s/api/v1/modules", addr), nil)
	require.NoError(t, err)

	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "GET")
}

func TestServerIntegration_PrometheusMetrics(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "dojo-metrics-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	// Create test module file
	moduleFile := filepath.Join(tempDir, "refund.yaml")
	err = os.WriteFile(moduleFile, []byte(testModuleYAML), 0644)
	require.NoError(t, err)

	// Create config with metrics enabled and default Prometheus registry
	config := &Config{
		Host:          "127.0.0.1",
		Port:          findAvailablePort(),
		MaxSessions:   4,
		EnableMetrics: true,
		EnableCORS:    true,
		ModuleFiles:   []string{moduleFile},
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		IdleTimeout:   30 * time.Second,
	}

	server, err := New(config)
	require.NoError(t, err)

	// Don't override the session manager - let it use default registry
	err = server.LoadModules()
	require.NoError(t, err)

	err = server.Start()
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	addr := server.GetAddr()

	// Test metrics endpoint
	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	responseBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	metricsText := string(responseBody)

	// Check for expected Prometheus metrics
	assert.Contains(t, metricsText, "dojo_sessions_started_total")
	assert.Contains(t, metricsText, "dojo_sessions_active")
	// Note: Histogram and CounterVec metrics may not appear until they have data
	// So we'll just check for the basic metrics that are always present
}

func TestServerIntegration_ModuleDirectory(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "dojo-server-dir-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	// Create test module in directory
	err = os.WriteFile(filepath.Join(tempDir, "dir-module.yaml"), []byte(interactiveModuleYAML), 0644)
	require.NoError(t, err)

	config := &Config{
		Host:          "127.0.0.1",
		Port:          findAvailablePort(),
		EnableMetrics: false,
		EnableCORS:    true,
		ModuleDir:     tempDir,
	}

	server, err := New(config)
	require.NoError(t, err)

	err = server.LoadModules()
	require.NoError(t, err)

	assert.Equal(t, 1, server.GetModuleCount())

	// Verify module was loaded under its declared id
	modules := server.modules.List()
	assert.Contains(t, modules, "interactive.hold")
}

func TestServerIntegration_InvalidModuleFile(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "dojo-server-invalid-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	// Create invalid module file
	invalidModule := `invalid: yaml: content: [[[`
	err = os.WriteFile(filepath.Join(tempDir, "invalid.yaml"), []byte(invalidModule), 0644)
	require.NoError(t, err)

	config := &Config{
		Host:      "127.0.0.1",
		Port:      findAvailablePort(),
		ModuleDir: tempDir,
	}

	server, err := New(config)
	require.NoError(t, err)

	// Loading modules should fail due to invalid YAML
	err = server.LoadModules()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse module")
}

func TestServerIntegration_EmptyModuleList(t *testing.T) {
	config := &Config{
		Host:        "127.0.0.1",
		Port:        findAvailablePort(),
		ModuleFiles: []string{},
	}

	server, err := New(config)
	require.NoError(t, err)

	// Loading empty module list should fail
	err = server.LoadModules()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no module files specified")
}

// Benchmark tests

func BenchmarkServer_ListModules(b *testing.B) {
	suite := setupTestSuite(&testing.T{})
	defer suite.cleanup(&testing.T{})

	addr := suite.startServerInBackground(&testing.T{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/modules", addr))
		if err != nil {
			b.Fatal(err)
		}
		resp.Body.Close()
	}
}

func BenchmarkServer_HealthCheck(b *testing.B) {
	suite := setupTestSuite(&testing.T{})
	defer suite.cleanup(&testing.T{})

	addr := suite.startServerInBackground(&testing.T{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err != nil {
			b.Fatal(err)
		}
		resp.Body.Close()
	}
}
