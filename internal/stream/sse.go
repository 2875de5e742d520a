package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Writer frames values as Server-Sent Events on an HTTP response
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event stream headers and commits the response. Responses
// that cannot flush still work; frames are then delivered when the handler
// returns
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	sw := &Writer{w: w, flusher: flusher}
	sw.flush()
	return sw
}

// Send writes v as one `data: <json>` frame and flushes it
func (s *Writer) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Pump writes every item of q to w until q is closed and drained or ctx is
// done. Write failures are logged and the item dropped; the queue keeps being
// drained so the producer is never held up by a dead client
func Pump[T any](ctx context.Context, q *Queue[T], w *Writer) {
	for {
		item, err := q.Next(ctx)
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				log.WithError(err).Debug("Event stream consumer stopped")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := w.Send(item); err != nil {
			log.WithError(err).Debug("Dropped event, client write failed")
		}
	}
}
