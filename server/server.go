package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"farecast/ml"
)

// AuditLog receives best-effort records of training runs and predictions.
// Implementations must not fail the request path.
type AuditLog interface {
	TrainingRun(generation uint64, windowFrom, windowTo time.Time,
		rowsPulled, rowsKept int, duration time.Duration, status, detail string)
	Prediction(at time.Time, distance float64, hour int, fare, revenue float64)
}

// Config bounds the server. Zero values fall back to defaults.
type Config struct {
	Addr            string
	MaxConns        int
	MaxMessageBytes int
}

// Server accepts stream connections and runs one session worker per
// connection. The predictor registry is shared across all sessions.
type Server struct {
	registry *ml.Registry
	trainer  *Trainer
	cache    *predCache
	metrics  *Metrics
	audit    AuditLog
	log      *zap.Logger

	addr        string
	maxConns    atomic.Int64
	maxMsgBytes atomic.Int64

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// New builds a server around a trainer and registry. audit may be nil.
func New(cfg Config, registry *ml.Registry, trainer *Trainer, audit AuditLog, log *zap.Logger) (*Server, error) {
	cache, err := newPredCache()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		registry: registry,
		trainer:  trainer,
		cache:    cache,
		metrics:  &Metrics{},
		audit:    audit,
		log:      log,
		addr:     cfg.Addr,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	s.SetLimits(cfg.MaxConns, cfg.MaxMessageBytes)
	return s, nil
}

// SetLimits adjusts the connection ceiling and frame size limit at runtime.
// Existing sessions keep the frame limit they started with.
func (s *Server) SetLimits(maxConns, maxMessageBytes int) {
	if maxConns <= 0 {
		maxConns = 256
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = 1 << 20
	}
	s.maxConns.Store(int64(maxConns))
	s.maxMsgBytes.Store(int64(maxMessageBytes))
}

// Metrics exposes the runtime counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(listener)
}

// Serve runs the accept loop on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.connsMu.Lock()
	s.listener = listener
	s.connsMu.Unlock()

	s.log.Info("server listening", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.dispatch(conn)
	}
}

func (s *Server) dispatch(conn net.Conn) {
	if s.metrics.activeSessions.Load() >= s.maxConns.Load() {
		s.metrics.rejectedSessions.Add(1)
		s.log.Warn("connection rejected: ceiling reached",
			zap.String("remote", conn.RemoteAddr().String()))
		if frame, err := encodeFrame(errorResponse{
			Type:  TypeError,
			Code:  CodeProtocol,
			Error: "connection limit reached",
		}); err == nil {
			_, _ = conn.Write(frame)
		}
		conn.Close()
		return
	}

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	s.metrics.activeSessions.Add(1)
	s.metrics.totalSessions.Add(1)

	worker := &session{
		conn:   conn,
		server: s,
		log:    s.log.With(zap.String("remote", conn.RemoteAddr().String())),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.connsMu.Lock()
			delete(s.conns, conn)
			s.connsMu.Unlock()
			s.metrics.activeSessions.Add(-1)
		}()
		worker.run()
	}()
}

// Shutdown stops accepting, closes live connections and waits for session
// workers up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.connsMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
