package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaEndpoint is used when no endpoint is configured.
const DefaultOllamaEndpoint = "http://localhost:11434"

// Ollama talks to an Ollama server through /api/generate.
type Ollama struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// NewOllama builds an Ollama backend.
func NewOllama(cfg Config) *Ollama {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  cfg.Timeout,
		client:   &http.Client{},
	}
}

// Complete implements Backend.
func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{Model: req.Model, Prompt: req.Prompt, Stream: false})
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("%w: invalid response body: %v", ErrBackend, err)
	}
	if out.Error != "" {
		return Response{}, &Error{Status: resp.StatusCode, Body: out.Error}
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	return Response{Content: out.Response, Model: model, Duration: time.Since(start)}, nil
}

// Close implements Backend.
func (o *Ollama) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
