// Package healthsrv runs the tiny PING/PONG TCP listener coordinators poll
// each other through, plus an HTTP /metrics endpoint for Prometheus.
package healthsrv

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	pingMessage = "PING"
	pongMessage = "PONG"
)

// Server listens for PING/PONG health probes on a TCP port and, if
// configured with a metrics address, serves Prometheus metrics over HTTP.
type Server struct {
	listener net.Listener
	http     *http.Server
}

// Listen starts the TCP PING/PONG listener on port. Accept runs in the
// background; call Close to stop it.
func Listen(port string) (*Server, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:"+port)
	if err != nil {
		return nil, err
	}
	log.WithField("port", port).Info("healthsrv: listening for PING/PONG probes")
	s := &Server{listener: ln}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Accept returns an error once the listener is closed; that's
			// the expected shutdown path, not worth logging as a failure.
			return
		}
		go handleConn(conn)
	}
}

func handleConn(conn net.Conn) {
	defer conn.Close()

	buffer := make([]byte, 4)
	n, err := conn.Read(buffer)
	if err != nil {
		if err != io.EOF {
			log.WithError(err).Debug("healthsrv: read failed")
		}
		return
	}

	if string(buffer[:n]) == pingMessage {
		if _, err := conn.Write([]byte(pongMessage)); err != nil {
			log.WithError(err).Debug("healthsrv: write failed")
		}
	}
}

// ServeMetrics starts an HTTP server exposing reg's Prometheus metrics at
// /metrics on addr. It runs until ctx is cancelled.
func (s *Server) ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.http = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("healthsrv: serving /metrics")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.http.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close stops the PING/PONG listener and, if running, the metrics server.
func (s *Server) Close() error {
	if s.http != nil {
		_ = s.http.Shutdown(context.Background())
	}
	return s.listener.Close()
}
