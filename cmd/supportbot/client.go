package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/supportbot/internal/config"
	"github.com/kalambet/supportbot/internal/faq"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	if serverURL != "" {
		return &apiClient{
			baseURL:    strings.TrimRight(serverURL, "/"),
			httpClient: &http.Client{Timeout: 60 * time.Second},
		}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &apiClient{
		baseURL:    localURL(cfg),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// localURL is the address a client on the same host uses to reach the
// configured server.
func localURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// apiError is the error body returned by the server.
type apiError struct {
	Status  int
	Message string
	Type    string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type askResult struct {
	Response  string `json:"response"`
	Escalated bool   `json:"escalated"`
}

type historyMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type historyResult struct {
	SessionID string           `json:"session_id"`
	Messages  []historyMessage `json:"messages"`
}

type healthResult struct {
	Status       string `json:"status"`
	LLMAvailable bool   `json:"llm_available"`
	Provider     string `json:"provider"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s, is supportbot running? (%w)", c.baseURL, err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) health(ctx context.Context) (healthResult, error) {
	var h healthResult
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return h, err
	}
	return h, decodeJSON(resp, &h)
}

func (c *apiClient) newSession(ctx context.Context) (string, error) {
	resp, err := c.post(ctx, "/new_session", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *apiClient) ask(ctx context.Context, sessionID, query string) (askResult, error) {
	var out askResult
	resp, err := c.post(ctx, "/ask", map[string]string{
		"session_id": sessionID,
		"query":      query,
	})
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out)
}

func (c *apiClient) history(ctx context.Context, sessionID string) (historyResult, error) {
	var out historyResult
	resp, err := c.get(ctx, "/get_history/"+sessionID)
	if err != nil {
		return out, err
	}
	return out, decodeJSON(resp, &out)
}

func (c *apiClient) faqs(ctx context.Context) ([]faq.Entry, error) {
	var out []faq.Entry
	resp, err := c.get(ctx, "/faqs")
	if err != nil {
		return nil, err
	}
	return out, decodeJSON(resp, &out)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		apiErr := &apiError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
			apiErr.Type = envelope.Error.Type
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
