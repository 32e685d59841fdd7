package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const sseWriteTimeout = 3 * time.Second

// SSEStream manages a Server-Sent Events connection. Each event
// carries an increasing id so clients can tell when frames were
// dropped.
type SSEStream struct {
	w      http.ResponseWriter
	f      http.Flusher
	nextID uint64
}

// NewSSEStream initializes an SSE connection by setting the
// required headers and flushing them to the client. Returns an
// error if the ResponseWriter does not support streaming.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSEStream{w: w, f: f}, nil
}

// Send writes an SSE event with the given name and string data.
// Multi-line data is split across data fields. It returns false
// when the write fails.
func (s *SSEStream) Send(event, data string) bool {
	// Apply a bounded write deadline when supported so a stalled
	// client cannot block handlers forever.
	rc := http.NewResponseController(s.w)
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
	defer func() { _ = rc.SetWriteDeadline(time.Time{}) }()

	s.nextID++
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\nevent: %s\n", s.nextID, event)
	for line := range strings.SplitSeq(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		log.Printf("SSE write error for %q: %v", event, err)
		return false
	}
	s.f.Flush()
	return true
}

// SendJSON writes an SSE event with JSON-serialized data.
// Logs and skips the event if marshaling fails.
func (s *SSEStream) SendJSON(event string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("SSE marshal error for %q: %v", event, err)
		return false
	}
	return s.Send(event, string(data))
}
