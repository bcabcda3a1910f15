package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// DropConnection can be passed to InjectFaults to close the connection
// without a response, which clients observe as a network failure.
const DropConnection = -1

// RecordedRequest is what the ResourceServer saw for one request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

// ResourceServer is an in-memory resource endpoint speaking the envelope
// contract: every success body is {"data": ...}. Entities are JSON objects
// keyed by their "id" field.
type ResourceServer struct {
	*httptest.Server

	prefix string

	mu       sync.Mutex
	items    map[string]json.RawMessage
	order    []string
	faults   []int
	requests []RecordedRequest
}

// NewResourceServer serves the collection at /{resourcePath}/.
func NewResourceServer(tb testing.TB, resourcePath string) *ResourceServer {
	tb.Helper()

	s := &ResourceServer{
		prefix: "/" + strings.Trim(resourcePath, "/"),
		items:  map[string]json.RawMessage{},
	}
	s.Server = NewLocalHTTPServer(tb, http.HandlerFunc(s.serve))
	// Fresh connections keep DropConnection from being retried by net/http itself.
	s.Server.Config.SetKeepAlivesEnabled(false)

	return s
}

// InjectFaults queues statuses answered, in order, instead of serving the next
// requests. DropConnection closes the connection instead.
func (s *ResourceServer) InjectFaults(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, statuses...)
}

// Seed stores entity under id without going through HTTP.
func (s *ResourceServer) Seed(tb testing.TB, id string, entity any) {
	tb.Helper()

	raw, err := json.Marshal(entity)
	if err != nil {
		tb.Fatalf("failed to encode seed entity: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(id, raw)
}

// Requests returns every request received so far, faults included.
func (s *ResourceServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Len returns the number of stored entities.
func (s *ResourceServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *ResourceServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-Id"),
		Body:          string(body),
	})
	fault := 0
	if len(s.faults) > 0 {
		fault = s.faults[0]
		s.faults = s.faults[1:]
	}
	s.mu.Unlock()

	switch {
	case fault == DropConnection:
		dropConnection(w)
		return
	case fault != 0:
		writeJSON(w, fault, map[string]string{"error": http.StatusText(fault)})
		return
	}

	if !strings.HasPrefix(r.URL.Path, s.prefix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, s.prefix), "/")

	if id == "" {
		s.serveCollection(w, r, body)
		return
	}
	s.serveItem(w, r, id, body)
}

func (s *ResourceServer) serveCollection(w http.ResponseWriter, r *http.Request, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		list := make([]json.RawMessage, 0, len(s.order))
		for _, id := range s.order {
			list = append(list, s.items[id])
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": list})
	case http.MethodPost:
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid entity"})
			return
		}
		id, _ := fields["id"].(string)
		if id == "" {
			id = uuid.NewString()
			fields["id"] = id
			body, _ = json.Marshal(fields)
		}
		s.store(id, body)
		writeJSON(w, http.StatusCreated, map[string]any{"data": json.RawMessage(body)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *ResourceServer) serveItem(w http.ResponseWriter, r *http.Request, id string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": current})
	case http.MethodPut:
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid entity"})
			return
		}
		s.store(id, body)
		writeJSON(w, http.StatusOK, map[string]any{"data": json.RawMessage(body)})
	case http.MethodDelete:
		delete(s.items, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": current})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// store must be called with s.mu held.
func (s *ResourceServer) store(id string, raw []byte) {
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = append(json.RawMessage(nil), raw...)
}

func dropConnection(w http.ResponseWriter) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}
