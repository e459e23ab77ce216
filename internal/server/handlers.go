package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/session"
)

// HTTP Handlers

// listModules returns all loaded modules
func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	modules := make(map[string]any)

	for _, id := range s.modules.List() {
		module, _ := s.modules.Get(id)

		var tools []string
		if module.Environment != nil {
			for _, tool := range module.Environment.Tools {
				tools = append(tools, tool.Name)
			}
		}

		modules[id] = map[string]any{
			"description": module.Description,
			"variables":   len(module.Variables),
			"steps":       len(module.Steps),
			"branches":    len(module.Branches),
			"tools":       tools,
			"checks":      len(module.Evaluation),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"modules": modules,
		"count":   len(modules),
	})
}

// getModule returns the full definition of a single module
func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	moduleID := vars["id"]

	module, exists := s.modules.Get(moduleID)
	if !exists {
		http.Error(w, fmt.Sprintf("Module '%s' not found", moduleID), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(module)
}

// listAgents returns all discovered agent specs
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := make([]map[string]any, 0)

	for _, spec := range s.agents.Specs() {
		agents = append(agents, map[string]any{
			"id":    spec.ID,
			"name":  spec.Name,
			"kind":  spec.Kind,
			"model": spec.Model,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

// listSessions returns all tracked sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.List()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

// sessionDetail is the single-session view; Result is present once the
// session has finished.
type sessionDetail struct {
	session.Info
	Result *engine.RunResult `json:"result,omitempty"`
}

// getSession returns the status of a specific session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Session '%s' not found", sessionID), http.StatusNotFound)
		return
	}

	detail := sessionDetail{Info: sess.Info()}
	if result, ok := sess.Result(); ok {
		detail.Result = result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// deleteSession cancels and removes a session
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	if err := s.sessions.Delete(sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Session '%s' not found", sessionID), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.sessions != nil {
		active = s.sessions.Active()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "healthy",
		"modules_loaded":  s.modules.Count(),
		"agents_loaded":   len(s.agents.IDs()),
		"active_sessions": active,
		"timestamp":       time.Now(),
	})
}
