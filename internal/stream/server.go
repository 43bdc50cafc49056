package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// headerTimeout is how long a new connection has to send its CallHeader
const headerTimeout = 10 * time.Second

// Delay bounds between retries of a failing Accept
const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// writeTimeout bounds a single frame write so a stalled peer cannot pin a worker
const writeTimeout = 10 * time.Second

// Route binds a method name to the code serving it
type Route struct {
	// ClientStreaming is set when the client sends a stream of messages after the header
	ClientStreaming bool
	Serve           func(ctx context.Context, call *Call) error
}

// ServerConfig holds configuration for a stage server
type ServerConfig struct {
	Name          string        // used in logs
	Workers       int           // concurrent sessions
	ShutdownGrace time.Duration // time given to in-flight sessions before they are force-closed
}

// DefaultServerConfig returns default configuration
func DefaultServerConfig(name string) ServerConfig {
	return ServerConfig{
		Name:          name,
		Workers:       10,
		ShutdownGrace: 5 * time.Second,
	}
}

// Server accepts streaming calls over TCP and serves each one on a worker
// from a bounded pool. One connection carries exactly one call.
type Server struct {
	cfg    ServerConfig
	routes map[string]Route
	logger *slog.Logger

	mu   sync.Mutex
	addr net.Addr
	pool *Pool
}

// NewServer creates a server. Register routes with Handle before calling Serve.
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		routes: make(map[string]Route),
		logger: logger.With("component", cfg.Name),
	}
}

// Handle registers route for method. Panics if method is already registered.
func (s *Server) Handle(method string, route Route) {
	if _, exists := s.routes[method]; exists {
		panic(fmt.Sprintf("stream.Server: duplicate handler for method %q", method))
	}
	s.routes[method] = route
}

// Addr returns the bound listener address once Serve has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Busy returns the number of sessions currently being served
func (s *Server) Busy() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return 0
	}
	return s.pool.Busy()
}

// ListenAndServe listens on addr and calls Serve
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts calls on listener until ctx is cancelled, then stops
// accepting, waits up to ShutdownGrace for in-flight sessions and
// force-closes the rest. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	pool := NewPool(s.cfg.Workers)

	s.mu.Lock()
	s.addr = listener.Addr()
	s.pool = pool
	s.mu.Unlock()

	// Sessions outlive ctx by up to ShutdownGrace.
	sessionCtx, forceClose := context.WithCancelCause(context.WithoutCancel(ctx))
	defer forceClose(nil)

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("Stage server listening", "addr", listener.Addr().String(), "workers", s.cfg.Workers)

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			backoff = nextAcceptBackoff(backoff)
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		// Blocks while every worker is busy; later calls wait in the listen backlog.
		err = pool.Submit(ctx, func() {
			s.serveConn(sessionCtx, conn)
		})
		if err != nil {
			conn.Close()
			break
		}
	}

	s.logger.Info("Stage server stopping, draining sessions", "busy", pool.Busy(), "grace", s.cfg.ShutdownGrace)

	drained := make(chan struct{})
	go func() {
		pool.Close()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("Shutdown grace elapsed, closing remaining sessions", "busy", pool.Busy())
		forceClose(Errorf(Unavailable, "server shutting down"))
		<-drained
	}

	s.logger.Info("Stage server stopped")
	return nil
}

// nextAcceptBackoff doubles the delay after a failed Accept, from
// minAcceptBackoff up to maxAcceptBackoff
func nextAcceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	return min(2*prev, maxAcceptBackoff)
}

// serveConn runs one call from header to final status
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	call := &Call{
		conn: conn,
		enc:  newEncoder(conn),
		dec:  newDecoder(conn),
	}

	conn.SetReadDeadline(time.Now().Add(headerTimeout))
	if err := call.dec.Decode(&call.Header); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		call.finish(Errorf(InvalidArgument, "invalid call header: %v", err), s.logger)
		return
	}
	conn.SetReadDeadline(time.Time{})

	id, err := uuid.Parse(call.Header.CallID)
	if err != nil {
		id = uuid.New()
	}
	call.Session = NewSession(id, call.Header.Method, s.logger)
	logger := call.Session.Logger()

	route, exists := s.routes[call.Header.Method]
	if !exists {
		logger.Warn("Unknown method")
		call.finish(Errorf(Unimplemented, "method %q not implemented", call.Header.Method), logger)
		return
	}

	logger.Info("Session opened", "remote", conn.RemoteAddr().String())
	started := time.Now()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	call.msgs = make(chan RawMessage)
	go call.readLoop(ctx, cancel, route.ClientStreaming)
	go call.watch(ctx)

	err = route.Serve(ctx, call)
	if err != nil && ctx.Err() != nil {
		// Failed I/O after cancellation reports the cancellation itself.
		err = context.Cause(ctx)
	}
	call.finish(err, logger)

	code, _ := StatusOf(err)
	logger.Info("Session closed",
		"code", code,
		"items", call.Session.Items(),
		"duration", time.Since(started).Round(time.Millisecond),
	)
}

// Call is the server side of one streaming call
type Call struct {
	Header  CallHeader
	Session *Session

	conn net.Conn
	enc  *cbor.Encoder
	dec  *cbor.Decoder
	msgs chan RawMessage

	mu       sync.Mutex
	finished bool
}

// Request decodes the unary request carried in the header
func (c *Call) Request(v any) error {
	if len(c.Header.Request) == 0 {
		return Errorf(InvalidArgument, "missing request")
	}
	if err := Unmarshal(c.Header.Request, v); err != nil {
		return Errorf(InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// Send writes one message frame
func (c *Call) Send(v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return Errorf(Internal, "failed to encode message: %v", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.enc.Encode(Frame{Kind: KindMsg, Payload: payload}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readLoop consumes client frames until the connection fails or the call is
// cancelled. Message payloads are handed over one at a time on c.msgs, which
// is closed when the client ends its side.
func (c *Call) readLoop(ctx context.Context, cancel context.CancelCauseFunc, clientStreaming bool) {
	ended := false
	for {
		var frame Frame
		if err := c.dec.Decode(&frame); err != nil {
			if ctx.Err() == nil {
				cancel(Errorf(Cancelled, "client went away"))
			}
			return
		}

		switch frame.Kind {
		case KindMsg:
			if !clientStreaming || ended {
				cancel(Errorf(InvalidArgument, "unexpected message frame"))
				return
			}
			select {
			case c.msgs <- frame.Payload:
			case <-ctx.Done():
				return
			}
		case KindEnd:
			if clientStreaming && !ended {
				close(c.msgs)
			}
			ended = true
		case KindCancel:
			cancel(Errorf(Cancelled, "cancelled by client"))
			return
		default:
			cancel(Errorf(InvalidArgument, "unknown frame kind %q", frame.Kind))
			return
		}
	}
}

// watch unblocks pending reads and writes once the call is cancelled
func (c *Call) watch(ctx context.Context) {
	<-ctx.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		c.conn.SetDeadline(time.Now())
	}
}

// finish writes the final status frame. Write failures are logged at debug
// level; the connection is closing regardless.
func (c *Call) finish(err error, logger *slog.Logger) {
	c.mu.Lock()
	c.finished = true
	c.conn.SetDeadline(time.Time{})
	c.mu.Unlock()

	code, message := StatusOf(err)
	if code == Internal {
		logger.Error("Session failed", "error", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.enc.Encode(Frame{Kind: KindStatus, Code: code, Message: message}); err != nil {
		logger.Debug("failed to write status", "code", code, "error", err)
	}
}

// BidiRoute builds the route of a stage that answers every inbound message
// with exactly one outbound message. open runs once per call and returns the
// transform holding that call's state.
func BidiRoute[In, Out any](open func(sess *Session) Transform[In, Out]) Route {
	return Route{
		ClientStreaming: true,
		Serve: func(ctx context.Context, call *Call) error {
			transform := open(call.Session)
			return Pump(ctx, call.Session, &recvInbound[In]{msgs: call.msgs}, transform, sender[Out]{call})
		},
	}
}

// TickerRoute builds the route of a periodic stage: the unary request opens
// the session and every tick produces one outbound message until the client
// cancels.
func TickerRoute[Req, Out any](interval time.Duration, open func(sess *Session, req Req) (Transform[time.Time, Out], error)) Route {
	return Route{
		Serve: func(ctx context.Context, call *Call) error {
			var req Req
			if err := call.Request(&req); err != nil {
				return err
			}
			transform, err := open(call.Session, req)
			if err != nil {
				return err
			}

			ticker := NewTicker(interval)
			defer ticker.Stop()
			return Pump(ctx, call.Session, ticker, transform, sender[Out]{call})
		},
	}
}

type recvInbound[T any] struct {
	msgs <-chan RawMessage
}

func (r *recvInbound[T]) Next(ctx context.Context) (T, error) {
	var item T
	select {
	case <-ctx.Done():
		return item, context.Cause(ctx)
	case raw, ok := <-r.msgs:
		if !ok {
			return item, io.EOF
		}
		if err := Unmarshal(raw, &item); err != nil {
			return item, Errorf(InvalidArgument, "invalid message: %v", err)
		}
		return item, nil
	}
}

type sender[T any] struct {
	call *Call
}

func (s sender[T]) Send(v T) error {
	return s.call.Send(v)
}
