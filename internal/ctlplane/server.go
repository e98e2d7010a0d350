package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/metrics"
)

// Request is a command waiting for the daemon loop. The loop must call
// Respond exactly once.
type Request struct {
	ID  string
	Msg Message

	reply chan error
}

// NewRequest creates a request for msg with a fresh id.
func NewRequest(msg Message) *Request {
	return &Request{ID: uuid.NewString(), Msg: msg, reply: make(chan error, 1)}
}

// Result delivers the value passed to Respond.
func (r *Request) Result() <-chan error {
	return r.reply
}

// Respond completes the request. Later calls are ignored.
func (r *Request) Respond(err error) {
	select {
	case r.reply <- err:
	default:
	}
}

// Server is the control socket listener.
type Server struct {
	path     string
	listener net.Listener
	requests chan *Request
	logger   *logging.Logger
	metrics  *metrics.Registry

	closeOnce sync.Once
}

// Listen removes a stale socket at path, listens on it and restricts it
// to the owner. reg may be nil.
func Listen(path string, logger *logging.Logger, reg *metrics.Registry) (*Server, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return &Server{
		path:     path,
		listener: listener,
		requests: make(chan *Request),
		logger:   logger.WithComponent("ctlplane"),
		metrics:  reg,
	}, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Requests delivers commands to the daemon loop.
func (s *Server) Requests() <-chan *Request {
	return s.requests
}

// Serve accepts connections one at a time until ctx is cancelled or the
// listener is closed. A connection is served until the client closes it.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logger.Info("control socket listening", "path", s.path)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("control read failed", "error", err)
			}
			return
		}
		if !msg.Type.IsRequest() {
			s.logger.Debug("ignoring control message", "type", msg.Type.String())
			continue
		}

		req := NewRequest(msg)
		log := s.logger.WithFields(map[string]any{"request_id": req.ID, "type": msg.Type.String()})
		if msg.Name != "" {
			log = log.WithFields(map[string]any{"network": msg.Name})
		}
		log.Info("control request")

		var result error
		select {
		case s.requests <- req:
		case <-ctx.Done():
			return
		}
		select {
		case result = <-req.Result():
		case <-ctx.Done():
			return
		}
		s.metrics.RecordControlRequest(msg.Type.String(), result)

		reply := Message{Type: TypeOK}
		if result != nil {
			log.Warn("control request failed", "error", result)
			reply.Type = TypeError
		}
		if err := WriteMessage(conn, reply); err != nil {
			s.logger.Warn("control write failed", "error", err)
			return
		}
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
		os.Remove(s.path)
	})
	return err
}
