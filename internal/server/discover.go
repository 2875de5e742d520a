package server

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/internal/stream"
)

// handleDiscover runs one discovery session and streams its events. The
// session runs on its own goroutine; the handler returns only after the
// queue is drained and the session has finished
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantHint := strings.TrimSpace(r.URL.Query().Get("tenantId"))

	defer s.metrics.StreamOpened()()

	q := stream.NewQueue[discovery.Event]()
	sw := stream.NewWriter(w)

	done := make(chan discovery.State, 1)
	go func() {
		defer q.Close()
		done <- s.discoverer.Run(ctx, tenantHint, q)
	}()

	stream.Pump(ctx, q, sw)
	state := <-done

	log.WithFields(log.Fields{
		"tenantHint": tenantHint,
		"state":      state,
	}).Debug("Discovery stream finished")
}
