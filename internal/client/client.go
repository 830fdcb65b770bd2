// Package client provides a JSON API client for the Tenderflow server.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/models"
)

// Client talks to the Tenderflow server's JSON API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new API client.
// If endpoint is empty, uses TENDERFLOW_SERVER_URL env var or defaults to localhost:8080.
// Timeout can be configured via TENDERFLOW_CLIENT_TIMEOUT env var (default 10m for batch operations).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("TENDERFLOW_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}
	endpoint = strings.TrimRight(endpoint, "/")

	timeout := 10 * time.Minute // Default: 10 minutes for batch LLM operations
	if t := os.Getenv("TENDERFLOW_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// errorResponse is the server's JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// RagQuery asks an ad-hoc question against a tender's corpus.
func (c *Client) RagQuery(ctx context.Context, req models.RagQueryRequest) (*models.RagQueryResponse, error) {
	var resp models.RagQueryResponse
	if err := c.do(ctx, http.MethodPost, "/rag/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunPlaybook executes a playbook batch for a tender.
func (c *Client) RunPlaybook(ctx context.Context, req models.PlaybookRequest) (*models.PlaybookResponse, error) {
	var resp models.PlaybookResponse
	if err := c.do(ctx, http.MethodPost, "/rag/playbook", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFiles fetches the corpus files indexed for a tender.
func (c *Client) ListFiles(ctx context.Context, tenderID string) ([]db.CorpusFileRecord, error) {
	var files []db.CorpusFileRecord
	path := "/rag/files?tenderId=" + url.QueryEscape(tenderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// PutDocument uploads the normalized document for a tender.
func (c *Client) PutDocument(ctx context.Context, tenderID string, document map[string]any) error {
	path := "/documents/" + url.PathEscape(tenderID)
	return c.do(ctx, http.MethodPut, path, document, nil)
}

// DeleteFiles removes corpus files by id, best effort per file.
func (c *Client) DeleteFiles(ctx context.Context, fileIDs []string) (*models.RagDeleteResponse, error) {
	var resp models.RagDeleteResponse
	req := models.RagDeleteRequest{RagFileIDs: fileIDs}
	if err := c.do(ctx, http.MethodPost, "/rag/files/delete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerResponse identifies the run accepted by a pipeline trigger.
type TriggerResponse struct {
	RunID    string `json:"runId"`
	TenderID string `json:"tenderId"`
}

// TriggerPipeline starts a pipeline run for a tender. The trigger message
// is wrapped in the same push envelope the server receives in production.
func (c *Client) TriggerPipeline(ctx context.Context, msg models.TriggerMessage) (*TriggerResponse, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger: %w", err)
	}
	envelope := map[string]any{
		"message": map[string]any{
			"data": base64.StdEncoding.EncodeToString(payload),
		},
	}

	var resp TriggerResponse
	if err := c.do(ctx, http.MethodPost, "/pubsub/pipeline-trigger", envelope, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun fetches the latest pipeline run for a tender.
func (c *Client) GetRun(ctx context.Context, tenderID string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	path := "/runs/" + url.PathEscape(tenderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns fetches every pipeline run recorded for a tender, newest first.
func (c *Client) ListRuns(ctx context.Context, tenderID string) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	path := "/runs/" + url.PathEscape(tenderID) + "/history"
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Metrics fetches the server's operation counters.
func (c *Client) Metrics(ctx context.Context) (map[string]any, error) {
	var snapshot map[string]any
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// WatchRuns streams run events over a websocket. The onEvent callback is
// invoked for each event; return an error from onEvent to abort. An empty
// tenderID watches every run.
func (c *Client) WatchRuns(ctx context.Context, tenderID string, onEvent func(ev events.RunEvent) error) error {
	wsEndpoint := c.endpoint + "/runs/watch"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if tenderID != "" {
		q := u.Query()
		q.Set("tenderId", tenderID)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev events.RunEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}
