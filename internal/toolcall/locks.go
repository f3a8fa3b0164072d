package toolcall

import (
	"path/filepath"
	"sort"
	"sync"
)

// ResourceLockManager provides per-path mutual exclusion for tool calls.
// Each path gets its own mutex, so calls touching different files run
// concurrently while calls touching the same file are serialized.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for path, creating it on first access.
func (r *ResourceLockManager) Lock(path string) {
	r.mu.Lock()
	fileLock, exists := r.locks[path]
	if !exists {
		fileLock = &sync.Mutex{}
		r.locks[path] = fileLock
	}
	r.mu.Unlock()

	// Acquire outside the manager lock so other paths are not blocked
	fileLock.Lock()
}

// Unlock releases the mutex for path.
func (r *ResourceLockManager) Unlock(path string) {
	r.mu.Lock()
	fileLock, exists := r.locks[path]
	r.mu.Unlock()

	if exists {
		fileLock.Unlock()
	}
}

// LockAll acquires the locks for every path in lexicographic order, which
// keeps two callers with overlapping sets from deadlocking.
func (r *ResourceLockManager) LockAll(paths []string) {
	for _, path := range sortedUnique(paths) {
		r.Lock(path)
	}
}

// UnlockAll releases the locks taken by LockAll in reverse order.
func (r *ResourceLockManager) UnlockAll(paths []string) {
	sorted := sortedUnique(paths)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

func sortedUnique(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	out := sorted[:0]
	for i, p := range sorted {
		if i == 0 || p != sorted[i-1] {
			out = append(out, p)
		}
	}
	return out
}

// pathArgs are the argument names that identify the file a tool touches.
var pathArgs = []string{"path", "file_path"}

// lockKeys returns the cleaned file paths named by a call's arguments.
func lockKeys(args map[string]any) []string {
	var keys []string
	for _, name := range pathArgs {
		if v, ok := args[name].(string); ok && v != "" {
			keys = append(keys, filepath.Clean(v))
		}
	}
	return keys
}
