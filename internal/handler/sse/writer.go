package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer serializes SSE frames onto one response. Event writes and the
// keep-alive goroutine share it, so every write holds the lock.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers and returns a writer for w
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteRetry tells the client how long to wait before reconnecting
func (s *Writer) WriteRetry(d time.Duration) error {
	return s.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
}

// WriteEvent writes one named event with a JSON payload
func (s *Writer) WriteEvent(event, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	frame := ""
	if id != "" {
		frame += "id: " + id + "\n"
	}
	frame += "event: " + event + "\n" + "data: " + string(data) + "\n\n"
	return s.write(frame)
}

// WriteKeepAlive writes an SSE comment (: keepalive) and flushes
func (s *Writer) WriteKeepAlive() error {
	return s.write(": keepalive\n\n")
}

func (s *Writer) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
