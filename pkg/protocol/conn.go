package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultMaxMessageSize bounds a single inbound message when no limit is given.
const DefaultMaxMessageSize = 8 << 20

var errMessageTooLarge = errors.New("message too large")

// Conn frames envelopes over a byte stream. Each message is one JSON object;
// writers terminate it with a newline and readers split on JSON value
// boundaries, so newline-terminated and back-to-back objects both decode.
//
// Receive is meant to be called from a single goroutine. Send and SendCommand
// are safe for concurrent use and never interleave two messages.
type Conn struct {
	nc      net.Conn
	limit   *messageLimiter
	dec     *json.Decoder
	writeMu sync.Mutex
}

// NewConn wraps nc. maxMessageSize <= 0 selects DefaultMaxMessageSize.
func NewConn(nc net.Conn, maxMessageSize int) *Conn {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	limit := &messageLimiter{r: nc, max: int64(maxMessageSize)}
	limit.reset()
	return &Conn{nc: nc, limit: limit, dec: json.NewDecoder(limit)}
}

// Receive blocks until one complete command envelope has been read.
// A clean close between messages returns a ConnectionError wrapping io.EOF.
func (c *Conn) Receive() (*Command, error) {
	raw, err := c.readMessage()
	if err != nil {
		return nil, err
	}
	return DecodeCommand(raw)
}

// ReceiveResponse blocks until one complete response envelope has been read.
func (c *Conn) ReceiveResponse() (*Response, error) {
	raw, err := c.readMessage()
	if err != nil {
		return nil, err
	}
	return DecodeResponse(raw)
}

// Send writes a response envelope.
func (c *Conn) Send(resp *Response) error {
	return c.write(resp)
}

// SendCommand writes a command envelope.
func (c *Conn) SendCommand(cmd *Command) error {
	return c.write(cmd)
}

// SetDeadline sets the read and write deadline of the underlying socket.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.nc.SetDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}

func (c *Conn) readMessage() (json.RawMessage, error) {
	c.limit.reset()
	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		return nil, c.readError(err)
	}
	return raw, nil
}

func (c *Conn) readError(err error) error {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return ConnectionError("connection closed", io.EOF)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ProtocolErrorf("connection closed mid-message")
	case errors.Is(err, errMessageTooLarge):
		return ProtocolErrorf("message exceeds %d bytes", c.limit.max)
	case errors.As(err, &syntaxErr):
		return ProtocolErrorf("invalid JSON at offset %d: %v", syntaxErr.Offset, err)
	default:
		return ConnectionError("read failed", err)
	}
}

func (c *Conn) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ProtocolErrorf("cannot encode message: %v", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(data); err != nil {
		return ConnectionError("write failed", err)
	}
	return nil
}

// messageLimiter caps the bytes pulled from the socket while decoding one
// message. The decoder reads ahead, so the cap is approximate by at most one
// read buffer.
type messageLimiter struct {
	r         io.Reader
	max       int64
	remaining int64
}

func (l *messageLimiter) reset() {
	l.remaining = l.max
}

func (l *messageLimiter) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, errMessageTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
