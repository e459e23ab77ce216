package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dojoai/dojo/internal/ast"
)

const defaultEndpointTimeout = 30 * time.Second

// Endpoint hands each turn to an external HTTP service: the history
// and published tools go out as JSON, an action comes back.
type Endpoint struct {
	spec   *Spec
	client *http.Client
}

func newEndpoint(spec *Spec) (*Endpoint, error) {
	if spec.Impl.URL == "" {
		return nil, fmt.Errorf("agent %s: http-endpoint requires impl.url", spec.ID)
	}
	timeout := defaultEndpointTimeout
	if seconds := intParam(spec.Params, "timeout_seconds", 0); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return &Endpoint{
		spec:   spec,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (a *Endpoint) ID() string { return a.spec.ID }

func (a *Endpoint) Step(ctx context.Context, history []ast.Message, published []PublishedTool) (Action, error) {
	payload, err := json.Marshal(stepRequest{History: history, Tools: published})
	if err != nil {
		return Action{}, fmt.Errorf("agent %s: encoding step request: %w", a.spec.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.spec.Impl.URL, bytes.NewReader(payload))
	if err != nil {
		return Action{}, fmt.Errorf("agent %s: building request: %w", a.spec.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Action{}, fmt.Errorf("agent %s: calling endpoint: %w", a.spec.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Action{}, fmt.Errorf("agent %s: reading response: %w", a.spec.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Action{}, fmt.Errorf("agent %s: endpoint returned %s: %s", a.spec.ID, resp.Status, truncate(string(body), 200))
	}

	var action Action
	if err := json.Unmarshal(body, &action); err != nil {
		return Action{}, fmt.Errorf("agent %s: invalid action response: %w", a.spec.ID, err)
	}
	return action, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
