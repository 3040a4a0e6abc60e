package dns

import (
	"context"
	"fmt"
	"time"

	"advoid/pkg/logging"

	"github.com/miekg/dns"
)

// tcpIdleTimeout bounds how long an idle TCP connection may hold a worker.
const tcpIdleTimeout = 5 * time.Second

// Server runs paired UDP and TCP listeners on one address, both backed by
// the same handler.
type Server struct {
	addr      string
	udpServer *dns.Server
	tcpServer *dns.Server
	logger    *logging.Logger
}

// NewServer creates a Server listening on addr with the given handler.
func NewServer(addr string, handler dns.Handler, logger *logging.Logger) *Server {
	return &Server{
		addr: addr,
		udpServer: &dns.Server{
			Addr:    addr,
			Net:     "udp",
			Handler: handler,
		},
		tcpServer: &dns.Server{
			Addr:        addr,
			Net:         "tcp",
			Handler:     handler,
			IdleTimeout: func() time.Duration { return tcpIdleTimeout },
		},
		logger: logger,
	}
}

// Start serves until ctx is cancelled or a listener fails. On cancellation
// it shuts down gracefully and returns nil.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 2)

	go func() {
		s.logger.Info("Starting UDP DNS listener", "address", s.addr)
		if err := s.udpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("UDP server failed: %w", err)
		}
	}()

	go func() {
		s.logger.Info("Starting TCP DNS listener", "address", s.addr)
		if err := s.tcpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("TCP server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("DNS server shutting down")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.logger.Error("DNS server error", "error", err)
		return err
	}
}

// Shutdown stops both listeners, waiting for in-flight queries up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.udpServer.ShutdownContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("UDP shutdown: %w", err))
	}
	if err := s.tcpServer.ShutdownContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("TCP shutdown: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	s.logger.Info("DNS server shut down")
	return nil
}
