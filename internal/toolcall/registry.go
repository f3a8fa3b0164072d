package toolcall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Result is the decoded outcome of one tool invocation. It always carries a
// boolean "success" key.
type Result map[string]any

// Success reports the "success" key.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorMessage returns the "error" key, if any.
func (r Result) ErrorMessage() string {
	if r == nil {
		return ""
	}
	switch v := r["error"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func failure(msg string) Result {
	return Result{"success": false, "error": msg}
}

// ToolFunc is an in-process tool. A returned error becomes a failed Result.
type ToolFunc func(ctx context.Context, args map[string]any) (Result, error)

// Registry holds the in-process tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunc)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(name string, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (ToolFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterWorkspaceTools adds the read-only workspace tools rooted at dir:
// read_file and list_files. Paths may not escape dir.
func RegisterWorkspaceTools(r *Registry, dir string) {
	r.Register("read_file", func(ctx context.Context, args map[string]any) (Result, error) {
		path, err := workspacePath(dir, stringArg(args, "file_path", "path"))
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return Result{"success": true, "output": string(data), "path": path}, nil
	})

	r.Register("list_files", func(ctx context.Context, args map[string]any) (Result, error) {
		root, err := workspacePath(dir, stringArg(args, "directory", "path"))
		if err != nil {
			return nil, err
		}
		recursive := strings.EqualFold(stringArg(args, "recursive"), "true")

		var files []any
		err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == root {
				return nil
			}
			rel, _ := filepath.Rel(root, p)
			files = append(files, rel)
			if d.IsDir() && !recursive {
				return filepath.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}
		return Result{"success": true, "files": files, "count": len(files)}, nil
	})
}

// stringArg returns the first non-empty string among the named arguments.
func stringArg(args map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := args[name]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func workspacePath(dir, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", rel)
	}
	return p, nil
}
