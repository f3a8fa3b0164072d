package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/scheduler"
)

// Endpoint routes a tool name to a remote tool server path.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// DefaultEndpoints is the static routing table of the tool server.
func DefaultEndpoints() map[string]Endpoint {
	return map[string]Endpoint{
		"write_file": {Method: http.MethodPost, Path: "/v1/tools/write-file"},
		"make_dir":   {Method: http.MethodPost, Path: "/v1/tools/make-dir"},
		"run_shell":  {Method: http.MethodPost, Path: "/v1/tools/run-shell"},
		"open_app":   {Method: http.MethodPost, Path: "/v1/tools/open-app"},
		"list_dir":   {Method: http.MethodGet, Path: "/v1/tools/list-dir"},
	}
}

// Config configures a Dispatcher.
type Config struct {
	BaseURL          string              // Tool server, default http://127.0.0.1:8001
	Timeout          time.Duration       // Per-call timeout, default 30s
	WorkingDirectory string              // Recorded with every command execution
	Endpoints        map[string]Endpoint // Defaults to DefaultEndpoints()
}

// ToolResult is one entry of a task's tool_results.
type ToolResult struct {
	Tool    string         `json:"tool"`
	Dialect string         `json:"dialect"`
	Args    map[string]any `json:"args,omitempty"`
	Raw     string         `json:"raw,omitempty"`
	Result  Result         `json:"result,omitempty"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// Dispatcher routes tool calls to in-process tools or the remote tool server.
type Dispatcher struct {
	cfg      Config
	registry *Registry
	recorder contextlog.Recorder
	locks    *ResourceLockManager
	client   *http.Client
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. A nil registry or recorder is allowed.
func NewDispatcher(cfg Config, registry *Registry, recorder contextlog.Recorder) *Dispatcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8001"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpoints()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if recorder == nil {
		recorder = contextlog.Nop{}
	}

	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		recorder: recorder,
		locks:    NewResourceLockManager(),
		client:   &http.Client{},
		now:      time.Now,
	}
}

// Dispatch runs one call on behalf of task and returns its result. Failures
// are reported inside the Result, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, task *scheduler.Task, call Call) Result {
	keys := lockKeys(call.Args)
	d.locks.LockAll(keys)
	defer d.locks.UnlockAll(keys)

	start := d.now()
	result := d.route(ctx, call)
	d.record(ctx, task, call, result, d.now().Sub(start))
	return result
}

func (d *Dispatcher) route(ctx context.Context, call Call) Result {
	if fn, ok := d.registry.Lookup(call.Name); ok {
		res, err := fn(ctx, call.Args)
		if err != nil {
			return failure(err.Error())
		}
		// The tool may hand back a map it still owns.
		out := make(Result, len(res)+1)
		maps.Copy(out, res)
		if _, ok := out["success"]; !ok {
			out["success"] = true
		}
		return out
	}

	if ep, ok := d.cfg.Endpoints[call.Name]; ok {
		return d.remote(ctx, ep, call.Args)
	}

	return failure("Unknown tool: " + call.Name)
}

func (d *Dispatcher) remote(ctx context.Context, ep Endpoint, args map[string]any) Result {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	target := d.cfg.BaseURL + ep.Path
	var req *http.Request
	var err error

	if strings.EqualFold(ep.Method, http.MethodGet) {
		q := url.Values{}
		for k, v := range args {
			q.Set(k, fmt.Sprint(v))
		}
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		method := strings.ToUpper(ep.Method)
		if method == "" {
			method = http.MethodPost
		}
		body, merr := json.Marshal(args)
		if merr != nil {
			return failure(fmt.Sprintf("failed to encode arguments: %v", merr))
		}
		req, err = http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return failure(fmt.Sprintf("failed to build request: %v", err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return failure(err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return failure(fmt.Sprintf("invalid tool response: %v", err))
	}
	if result == nil {
		result = Result{}
	}
	if _, ok := result["success"]; !ok {
		result["success"] = true
	}
	return result
}

func (d *Dispatcher) record(ctx context.Context, task *scheduler.Task, call Call, result Result, took time.Duration) {
	exec := contextlog.CommandExecution{
		SessionID:        contextlog.SessionFrom(ctx),
		Command:          call.Command(),
		ExitCode:         1,
		Stderr:           result.ErrorMessage(),
		Duration:         took,
		WorkingDirectory: d.cfg.WorkingDirectory,
	}
	if task != nil {
		exec.TaskID = task.ID
	}
	if result.Success() {
		exec.ExitCode = 0
	}
	if out, ok := result["output"]; ok {
		exec.Stdout = fmt.Sprint(out)
	}

	// Recording must outlive a cancelled task context
	if err := d.recorder.RecordCommandExecution(context.WithoutCancel(ctx), exec); err != nil {
		log.Printf("WARNING: failed to record tool call %q: %v", call.Name, err)
	}
}

// Execute runs every parsed call in order and collects the results. Parse
// failures become failed entries without reaching the dispatcher.
func (d *Dispatcher) Execute(ctx context.Context, task *scheduler.Task, parsed []ParseResult) []ToolResult {
	results := make([]ToolResult, 0, len(parsed))
	for _, p := range parsed {
		tr := ToolResult{
			Tool:    p.Call.Name,
			Dialect: p.Call.Dialect.String(),
			Args:    p.Call.Args,
		}
		if p.Err != nil {
			tr.Raw = p.Call.Raw
			tr.Error = p.Err.Error()
			results = append(results, tr)
			continue
		}

		res := d.Dispatch(ctx, task, p.Call)
		tr.Result = res
		tr.Success = res.Success()
		tr.Error = res.ErrorMessage()
		results = append(results, tr)
	}
	return results
}
