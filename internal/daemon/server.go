package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/matheus3301/wagate/internal/config"
	"github.com/matheus3301/wagate/internal/notify"
	"go.uber.org/zap"
)

// Server is the HTTP surface of the daemon. It exposes the push
// channel; request routing for the control API lives outside this
// process boundary.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates the HTTP server with the push-channel endpoint
// mounted at /ws.
func NewServer(cfg *config.Config, hub *notify.Hub, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("error shutting down http server", zap.Error(err))
	}
}
