package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/config"
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// Client talks to the remote orchestrator over HTTP/JSON. One intent is one
// request/response exchange; the client never retries on its own — transient
// failures are surfaced as retryable so the caller stays in charge of what
// the user sees.
type Client struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates an orchestrator client from config.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: cfg.OrchestratorTimeout,
		},
		baseURL: cfg.OrchestratorURL,
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// Exchange posts a single intent and parses the orchestrator's answer.
// Every field of the response is untrusted until parsed: a missing
// discriminant comes back as an empty Status, which callers must treat as
// "no state change" rather than a crash.
func (c *Client) Exchange(ctx context.Context, req model.IntentRequest) (*model.IntentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn().Err(err).Str("intent", string(req.Intent)).Msg("Intent exchange failed")
		return nil, fmt.Errorf("%w: %v", model.ErrOrchestratorUnreachable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: orchestrator returned %d", model.ErrOrchestratorUnreachable, httpResp.StatusCode)
	}

	var resp model.IntentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		// Malformed body: no state change, surfaced as retryable upstream.
		c.log.Warn().Err(err).Str("intent", string(req.Intent)).Msg("Malformed orchestrator response")
		return &model.IntentResponse{}, nil
	}

	c.log.Debug().
		Str("intent", string(req.Intent)).
		Str("status", resp.Status).
		Dur("elapsed", time.Since(started)).
		Msg("Intent exchanged")

	return &resp, nil
}

// FetchState retrieves the orchestrator's authoritative session snapshot,
// used to reconstruct a session on mount/resume and to resync after a
// rejected intent.
func (c *Client) FetchState(ctx context.Context, studentID string) (*model.RemoteSessionState, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s", c.baseURL, studentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrOrchestratorUnreachable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: orchestrator returned %d", model.ErrOrchestratorUnreachable, httpResp.StatusCode)
	}

	var state model.RemoteSessionState
	if err := json.NewDecoder(httpResp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if state.Status != model.ExchangeSuccess {
		return nil, fmt.Errorf("%w: state status %q", model.ErrOrchestratorUnreachable, state.Status)
	}

	return &state, nil
}
