package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"yuributton/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the mirrored display and the logs over HTTP.
type Server struct {
	hub    *HubService
	mirror *Mirror
	http   *http.Server
	logger *logger.Logger
}

// NewServer builds a server on port for mirror. The mirror is attached to a
// fresh hub so that display writes reach connected viewers.
func NewServer(port int, mirror *Mirror, states StateSource, logger *logger.Logger) *Server {
	hub := NewHubService(mirror.Snapshot, logger)
	mirror.Attach(hub)

	return &Server{
		hub:    hub,
		mirror: mirror,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: SetupRoutes(hub, mirror, states, logger),
		},
		logger: logger,
	}
}

// Run serves until ctx is done and then shuts the listener down. It returns
// only after the hub has closed every viewer.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	go s.hub.Run(hubCtx)
	defer func() {
		stopHub()
		<-s.hub.done
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Monitor listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warning("Monitor shutdown: %v", err)
		}
		return nil
	}
}
