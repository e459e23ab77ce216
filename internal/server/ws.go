package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/binder"
	"github.com/dojoai/dojo/pkg/events"
)

// Inbound frame types.
const (
	frameStart   = "start"
	frameMessage = "message"
	frameInject  = "inject"
	framePause   = "pause"
	frameResume  = "resume"
)

// Outbound frame types.
const (
	frameStarted       = "started"
	frameEvent         = "event"
	frameAwaitingInput = "awaiting_input"
	frameCompleted     = "completed"
	frameError         = "error"
	framePaused        = "paused"
	frameResumed       = "resumed"
	frameInjected      = "injected"
)

// writeWait bounds a single frame write so a stalled client cannot
// wedge the forwarding goroutine.
const writeWait = 10 * time.Second

// clientFrame is an inbound WebSocket message.
type clientFrame struct {
	Type string `json:"type"`

	// start
	ModuleID  string         `json:"module_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`

	// message
	Content string `json:"content,omitempty"`

	// inject
	Tool  string         `json:"tool,omitempty"`
	Event string         `json:"event,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
}

// serverFrame is an outbound WebSocket message. Only the fields for the
// frame's type are set.
type serverFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// started
	ModuleID string `json:"module_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`

	// event
	EventType events.Type    `json:"event_type,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`

	// awaiting_input
	Prompt  string `json:"prompt,omitempty"`
	Timeout any    `json:"timeout,omitempty"`

	// completed
	Evaluation any `json:"evaluation,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// injected
	Data any `json:"data,omitempty"`
}

// socketSession is one WebSocket connection and the session it owns.
// The connection drives at most one session at a time; starting another
// retires the previous one, and disconnecting retires whatever is left.
type socketSession struct {
	server *Server
	conn   *websocket.Conn

	// gorilla allows a single concurrent writer; the read loop and the
	// forwarding goroutine both send frames.
	writeMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// sessionSocket handles GET /ws/session
func (s *Server) sessionSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sock := &socketSession{server: s, conn: conn}
	defer sock.close()

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Session socket connected")
	sock.readLoop(r.Context())
}

// readLoop reads frames until the client disconnects. Malformed or
// unexpected frames produce error notices, never a closed connection.
func (ss *socketSession) readLoop(ctx context.Context) {
	for {
		_, raw, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			ss.sendError("", "invalid JSON")
			continue
		}

		switch frame.Type {
		case frameStart:
			ss.handleStart(ctx, frame)
		case frameMessage:
			ss.handleMessage(frame)
		case frameInject:
			ss.handleInject(frame)
		case framePause:
			ss.handlePause()
		case frameResume:
			ss.handleResume()
		default:
			ss.sendError(ss.id(), fmt.Sprintf("unknown message type %q", frame.Type))
		}
	}
}

func (ss *socketSession) handleStart(ctx context.Context, frame clientFrame) {
	if frame.ModuleID == "" {
		ss.sendError("", "module_id is required")
		return
	}

	module, exists := ss.server.modules.Get(frame.ModuleID)
	if !exists {
		ss.sendError("", fmt.Sprintf("module %q not found", frame.ModuleID))
		return
	}

	bound := binder.New().Bind(module, frame.Variables)

	ag, err := ss.server.agents.ForModule(frame.AgentID, bound, ss.server.providers)
	if err != nil {
		ss.sendError("", err.Error())
		return
	}

	// A new start replaces any session this connection already owns.
	ss.retire()

	sess, err := ss.server.sessions.Create(bound, ag)
	if err != nil {
		ss.sendError("", err.Error())
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := ss.server.sessions.Start(runCtx, sess.ID)
	if err != nil {
		cancel()
		_ = ss.server.sessions.Delete(sess.ID)
		ss.sendError("", err.Error())
		return
	}

	done := make(chan struct{})
	ss.mu.Lock()
	ss.sessionID = sess.ID
	ss.cancel = cancel
	ss.done = done
	ss.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID).
		Str("module_id", sess.ModuleID).
		Str("agent_id", sess.AgentID).
		Msg("Interactive session started")

	ss.send(serverFrame{
		Type:      frameStarted,
		SessionID: sess.ID,
		ModuleID:  sess.ModuleID,
		AgentID:   sess.AgentID,
	})

	go ss.forward(sess.ID, stream, done)
}

// forward relays the session's event stream to the client until the
// stream closes. Stream-ending events become dedicated frames; the
// connection itself stays open so the client can start another session.
func (ss *socketSession) forward(id string, stream <-chan events.Event, done chan struct{}) {
	defer close(done)

	for event := range stream {
		// Dropped once the connection has moved on to another session.
		if ss.id() != id {
			continue
		}

		var frame serverFrame
		switch event.Type {
		case events.TypeAwaitingInput:
			prompt, _ := event.Payload["prompt"].(string)
			frame = serverFrame{
				Type:      frameAwaitingInput,
				SessionID: id,
				Prompt:    prompt,
				Timeout:   event.Payload["timeout"],
			}
		case events.TypeCompleted:
			frame = serverFrame{
				Type:       frameCompleted,
				SessionID:  id,
				Evaluation: event.Payload["evaluation"],
			}
		case events.TypeError:
			message, _ := event.Payload["message"].(string)
			frame = serverFrame{
				Type:      frameError,
				SessionID: id,
				Message:   message,
			}
		default:
			frame = serverFrame{
				Type:      frameEvent,
				SessionID: id,
				EventType: event.Type,
				Payload:   event.Payload,
			}
		}

		if err := ss.send(frame); err != nil {
			// Client gone. Stop the run and drain the stream so the
			// manager can settle the session.
			ss.mu.Lock()
			cancel := ss.cancel
			ss.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			for range stream {
			}
			return
		}
	}
}

func (ss *socketSession) handleMessage(frame clientFrame) {
	id := ss.id()
	if id == "" {
		ss.sendError("", "no active session")
		return
	}

	if err := ss.server.sessions.ProvideInput(id, frame.Content); err != nil {
		ss.sendError(id, err.Error())
	}
}

func (ss *socketSession) handleInject(frame clientFrame) {
	id := ss.id()
	if id == "" {
		ss.sendError("", "no active session")
		return
	}

	data, err := ss.server.sessions.InjectEvent(id, frame.Tool, frame.Event, frame.Args)
	if err != nil {
		ss.sendError(id, err.Error())
		return
	}

	ss.send(serverFrame{Type: frameInjected, SessionID: id, Data: data})
}

func (ss *socketSession) handlePause() {
	id := ss.id()
	if id == "" {
		ss.sendError("", "no active session")
		return
	}

	if err := ss.server.sessions.Pause(id); err != nil {
		ss.sendError(id, err.Error())
		return
	}

	ss.send(serverFrame{Type: framePaused, SessionID: id})
}

func (ss *socketSession) handleResume() {
	id := ss.id()
	if id == "" {
		ss.sendError("", "no active session")
		return
	}

	if err := ss.server.sessions.Resume(id); err != nil {
		ss.sendError(id, err.Error())
		return
	}

	ss.send(serverFrame{Type: frameResumed, SessionID: id})
}

// retire tears down the connection's current session, if any, and
// waits for its forwarding goroutine to finish.
func (ss *socketSession) retire() {
	ss.mu.Lock()
	id := ss.sessionID
	cancel := ss.cancel
	done := ss.done
	ss.sessionID = ""
	ss.cancel = nil
	ss.done = nil
	ss.mu.Unlock()

	if id == "" {
		return
	}

	_ = ss.server.sessions.Delete(id)
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	log.Debug().Str("session_id", id).Msg("Session retired")
}

func (ss *socketSession) close() {
	ss.retire()
	ss.conn.Close()
}

func (ss *socketSession) send(frame serverFrame) error {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	ss.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ss.conn.WriteJSON(frame)
}

func (ss *socketSession) sendError(sessionID, message string) {
	_ = ss.send(serverFrame{Type: frameError, SessionID: sessionID, Message: message})
}

func (ss *socketSession) id() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.sessionID
}
