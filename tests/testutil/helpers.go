// Package testutil provides shared test helpers for the integration
// packages.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WriteFile creates dir/name with the given content and returns its path.
func WriteFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Callback is one request seen by a CallbackReceiver.
type Callback struct {
	Path    string
	User    string
	Payload map[string]any
}

// CallbackReceiver is an HTTP endpoint that records every callback posted
// to it.
type CallbackReceiver struct {
	URL string

	mu       sync.Mutex
	received []Callback
}

func NewCallbackReceiver(t *testing.T) *CallbackReceiver {
	t.Helper()
	receiver := &CallbackReceiver{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		receiver.mu.Lock()
		receiver.received = append(receiver.received, Callback{Path: r.URL.Path, User: user, Payload: payload})
		receiver.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	receiver.URL = server.URL
	return receiver
}

func (r *CallbackReceiver) Received() []Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Callback(nil), r.received...)
}

// Statuses lists the status field of every callback in arrival order.
func (r *CallbackReceiver) Statuses() []string {
	var statuses []string
	for _, callback := range r.Received() {
		if status, ok := callback.Payload["status"].(string); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
