package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubOllama(fn roundTripFunc) *Ollama {
	o := NewOllama(Config{Endpoint: "http://fake/"})
	o.client = &http.Client{Transport: fn}
	return o
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestOllamaComplete(t *testing.T) {
	o := stubOllama(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/generate" || req.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["model"] != "codellama:instruct" || payload["prompt"] != "plan it" || payload["stream"] != false {
			t.Errorf("payload = %v", payload)
		}
		return jsonResponse(200, `{"model": "codellama:instruct", "response": "[{\"id\": \"a\"}]", "done": true}`), nil
	})

	resp, err := o.Complete(context.Background(), Request{Model: "codellama:instruct", Prompt: "plan it"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != `[{"id": "a"}]` || resp.Model != "codellama:instruct" {
		t.Errorf("response = %+v", resp)
	}
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name       string
		rt         roundTripFunc
		wantIs     error
		wantStatus int
	}{
		{
			name: "transport failure",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
			wantIs: ErrUnavailable,
		},
		{
			name: "non-200",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(404, `{"error": "model 'x' not found"}`), nil
			},
			wantIs:     ErrBackend,
			wantStatus: 404,
		},
		{
			name: "error in body",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(200, `{"error": "out of memory"}`), nil
			},
			wantIs:     ErrBackend,
			wantStatus: 200,
		},
		{
			name: "garbage body",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(200, `not json`), nil
			},
			wantIs: ErrBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stubOllama(tt.rt).Complete(context.Background(), Request{Model: "x", Prompt: "p"})
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("error = %v, want errors.Is %v", err, tt.wantIs)
			}
			if tt.wantStatus != 0 {
				var be *Error
				if !errors.As(err, &be) || be.Status != tt.wantStatus {
					t.Errorf("error = %#v, want *Error with status %d", err, tt.wantStatus)
				}
			}
		})
	}
}

func TestOllamaTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	o := NewOllama(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	defer o.Close()

	_, err := o.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}
