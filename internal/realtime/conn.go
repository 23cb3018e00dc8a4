package realtime

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/protocol"
	"go.uber.org/zap"
)

// Close codes sent in the websocket close frame.
const (
	closeSuperseded = 4001
	closeKicked     = 4002
	closeAuthFailed = 4003
)

const maxFrameSize = 64 << 10

var (
	// ErrConnClosed is returned by Send after the connection closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned by Send when the peer is not draining.
	ErrSendQueueFull = errors.New("send queue full")
)

// Conn is a websocket client connection. A single writer goroutine owns all
// writes; Send only enqueues.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	logger *zap.Logger

	writeTimeout time.Duration
	pingInterval time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    string
	writerWG  sync.WaitGroup
}

func newConn(ws *websocket.Conn, sendBuffer int, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	c := &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
	}
	c.writerWG.Add(1)
	go c.writePump()
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

// bind attaches the authenticated identity. Called once, before the
// connection is registered.
func (c *Conn) bind(userID string) {
	c.userID = userID
}

// Send enqueues f without blocking.
func (c *Conn) Send(f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// Close stops the connection. Frames already queued are flushed first.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// wait blocks until the writer has flushed and closed the socket.
func (c *Conn) wait() {
	c.writerWG.Wait()
}

func (c *Conn) writePump() {
	defer c.writerWG.Done()
	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close("write failed")
				c.shutdown()
				return
			}
		case <-tick:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close("ping failed")
				c.shutdown()
				return
			}
		case <-c.done:
			c.flush()
			c.shutdown()
			return
		}
	}
}

func (c *Conn) write(kind int, data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(kind, data)
}

func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) shutdown() {
	code := websocket.CloseNormalClosure
	switch c.reason {
	case ReasonSuperseded:
		code = closeSuperseded
	case ReasonKicked:
		code = closeKicked
	case ReasonShutdown:
		code = websocket.CloseGoingAway
	case "auth":
		code = closeAuthFailed
	}
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, c.reason), deadline)
	_ = c.ws.Close()
}

// readToken waits for an authenticate frame. It is the handshake fallback
// when the upgrade request carried no token.
func (c *Conn) readToken(ctx context.Context) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", fault.AuthCause(fault.HandshakeTimeout, err)
		}
		return "", err
	}
	req, err := protocol.Decode(data)
	if err != nil {
		return "", fault.AuthCause(fault.MissingToken, err)
	}
	in, ok := req.Intent.(protocol.Authenticate)
	if !ok || in.Token == "" {
		return "", fault.Auth(fault.MissingToken)
	}
	return in.Token, nil
}

// readLoop feeds every inbound text frame to handle, in order, until the
// socket fails or the connection is closed.
func (c *Conn) readLoop(handle func([]byte)) {
	c.ws.SetReadLimit(maxFrameSize)
	if c.pingInterval > 0 {
		wait := 2*c.pingInterval + c.writeTimeout
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
