package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// maxResponseBytes bounds how much of a classification reply is read.
const maxResponseBytes = 1 << 20

// maxErrorBodyRunes bounds how much of an error reply ends up in the error.
const maxErrorBodyRunes = 200

// PriorityRequest is the JSON body posted to a priority classification
// service.
type PriorityRequest struct {
	TaskDetails    string `json:"taskDetails"`
	DueDate        string `json:"dueDate"`
	TaskParameters string `json:"taskParameters,omitempty"`
}

// PriorityResponse is the JSON reply of a priority classification service.
// Field values are returned as received; callers validate them.
type PriorityResponse struct {
	SuggestedPriority string `json:"suggestedPriority"`
	Reasoning         string `json:"reasoning"`
}

// PriorityClassifier asks a service which priority a task deserves.
type PriorityClassifier interface {
	Classify(ctx context.Context, req PriorityRequest) (*PriorityResponse, error)
}

type httpClassifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClassifier creates a PriorityClassifier that POSTs JSON to endpoint.
// A non-empty apiKey is sent as a bearer token. timeout bounds each request
// at the transport level; zero means no client-side limit beyond ctx.
func NewHTTPClassifier(endpoint, apiKey string, timeout time.Duration) PriorityClassifier {
	return &httpClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *httpClassifier) Classify(ctx context.Context, req PriorityRequest) (*PriorityResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling classification request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building classification request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling classification service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading classification response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := truncateRunes(strings.TrimSpace(string(data)), maxErrorBodyRunes)
		return nil, fmt.Errorf("classification service returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var out PriorityResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing classification response: %w", err)
	}
	if out.SuggestedPriority == "" && out.Reasoning == "" {
		return nil, errors.New("classification response has no suggestion")
	}
	return &out, nil
}

// truncateRunes cuts s to at most n characters without splitting one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
