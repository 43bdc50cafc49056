package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Client opens streaming calls against one stage endpoint. Every call uses a
// fresh connection, so calls are fully independent of each other.
type Client struct {
	addr   string
	dialer net.Dialer
}

// NewClient creates a client for the endpoint at addr (host:port)
func NewClient(addr string) *Client {
	return &Client{
		addr:   addr,
		dialer: net.Dialer{Timeout: 5 * time.Second},
	}
}

// Addr returns the endpoint address
func (c *Client) Addr() string {
	return c.addr
}

// Open starts a call to method. request is the unary request of
// server-streaming methods and nil otherwise. Cancelling ctx cancels the call.
func (c *Client) Open(ctx context.Context, method string, request any) (*ClientStream, error) {
	header := CallHeader{
		Method: method,
		CallID: uuid.NewString(),
	}
	if request != nil {
		raw, err := Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		header.Request = raw
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	s := &ClientStream{
		ctx:    ctx,
		callID: header.CallID,
		conn:   conn,
		enc:    newEncoder(conn),
		dec:    newDecoder(conn),
	}
	if err := s.enc.Encode(&header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send call header: %w", err)
	}

	s.stop = context.AfterFunc(ctx, func() {
		s.abort()
	})
	return s, nil
}

// ClientStream is the client side of one streaming call. Send and CloseSend
// may be used from one goroutine while Recv is used from another.
type ClientStream struct {
	ctx    context.Context
	callID string
	conn   net.Conn
	enc    *cbor.Encoder
	dec    *cbor.Decoder
	stop   func() bool

	sendMu   sync.Mutex
	sendDone bool

	closed    atomic.Bool
	closeOnce sync.Once

	recvMu sync.Mutex
	result error // terminal Recv result once the status frame has arrived
}

// CallID returns the id the server uses for this call's session
func (s *ClientStream) CallID() string {
	return s.callID
}

// Send writes one message to the server
func (s *ClientStream) Send(v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return s.send(Frame{Kind: KindMsg, Payload: payload})
}

// CloseSend tells the server no more messages will follow
func (s *ClientStream) CloseSend() error {
	return s.send(Frame{Kind: KindEnd})
}

func (s *ClientStream) send(frame Frame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.sendDone {
		return errors.New("stream: send on closed stream")
	}
	if frame.Kind == KindEnd {
		s.sendDone = true
	}
	if err := s.enc.Encode(frame); err != nil {
		if s.ctx.Err() != nil {
			return Errorf(Cancelled, "%v", context.Cause(s.ctx))
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Recv decodes the next message into v. It returns io.EOF once the server has
// finished the call successfully and a *StatusError if the call failed.
func (s *ClientStream) Recv(v any) error {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.result != nil {
		return s.result
	}

	var frame Frame
	if err := s.dec.Decode(&frame); err != nil {
		switch {
		case s.ctx.Err() != nil:
			s.result = Errorf(Cancelled, "%v", context.Cause(s.ctx))
		case s.closed.Load():
			s.result = Errorf(Cancelled, "stream closed")
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			s.result = Errorf(Unavailable, "connection closed without status")
		default:
			s.result = Errorf(Unavailable, "failed to read frame: %v", err)
		}
		s.release()
		return s.result
	}

	switch frame.Kind {
	case KindMsg:
		if err := Unmarshal(frame.Payload, v); err != nil {
			return Errorf(InvalidArgument, "invalid message: %v", err)
		}
		return nil
	case KindStatus:
		if frame.Code == OK {
			s.result = io.EOF
		} else {
			s.result = &StatusError{Code: frame.Code, Message: frame.Message}
		}
		s.release()
		return s.result
	default:
		s.result = Errorf(Internal, "unexpected frame kind %q from server", frame.Kind)
		s.release()
		return s.result
	}
}

// Close cancels the call if it is still running and releases the connection
func (s *ClientStream) Close() error {
	s.stop()
	s.abort()
	return nil
}

// abort asks the server to stop and drops the connection
func (s *ClientStream) abort() {
	s.sendMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.enc.Encode(Frame{Kind: KindCancel})
	s.sendDone = true
	s.sendMu.Unlock()

	s.closed.Store(true)
	s.closeConn()
}

// release drops the connection once the call has reached a terminal result
func (s *ClientStream) release() {
	s.stop()
	s.closeConn()
}

func (s *ClientStream) closeConn() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// Recv is the typed form of ClientStream.Recv
func Recv[T any](s *ClientStream) (T, error) {
	var v T
	err := s.Recv(&v)
	return v, err
}

// ServerStream is a typed receive-only view of a call
type ServerStream[Resp any] struct {
	*ClientStream
}

// Recv returns the next message, io.EOF at a clean end, or the call's failure
func (s ServerStream[Resp]) Recv() (Resp, error) {
	return Recv[Resp](s.ClientStream)
}

// BidiStream is a typed view of a call where both sides stream messages
type BidiStream[Req, Resp any] struct {
	ServerStream[Resp]
}

// NewBidiStream wraps s with message types
func NewBidiStream[Req, Resp any](s *ClientStream) BidiStream[Req, Resp] {
	return BidiStream[Req, Resp]{ServerStream[Resp]{s}}
}

// Send writes one request message
func (s BidiStream[Req, Resp]) Send(req Req) error {
	return s.ClientStream.Send(req)
}
