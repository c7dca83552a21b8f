package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

// Callbacks receive connection events. OnMessage is invoked from a single
// goroutine in arrival order; none of the callbacks should block for long.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(Message)
	OnClose   func()
	OnError   func(error)
}

// Client owns one live channel for the lifetime of a session. It is not reusable:
// once Closed or Errored, a new Client is required.
type Client struct {
	dialer Dialer
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	conn     Conn
	out      *outbox
	cancel   context.CancelFunc
	cb       Callbacks
	closeErr error

	errOnce sync.Once
	wg      sync.WaitGroup

	sentAudio  atomic.Uint64
	sentFrames atomic.Uint64
	rejected   atomic.Uint64
}

// NewClient returns an idle client.
func NewClient(dialer Dialer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{dialer: dialer, logger: logger}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials and blocks until the channel is open. It has no timeout of its
// own: a hung handshake stays Connecting until ctx is cancelled or Close is called.
func (c *Client) Connect(ctx context.Context, setup Setup, cb Callbacks) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	dialCtx, cancel := context.WithCancel(ctx)
	c.status = StatusConnecting
	c.cancel = cancel
	c.cb = cb
	c.mu.Unlock()

	c.logger.Debug("live channel connecting", "model", setup.Model, "tools", len(setup.Tools))
	conn, err := c.dialer.Dial(dialCtx, setup)
	cancel()

	c.mu.Lock()
	if c.status != StatusConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		c.mu.Unlock()
		cerr := &ConnectionError{Op: "dial", Err: err}
		c.fail(cerr)
		return cerr
	}
	c.conn = conn
	c.out = newOutbox()
	c.status = StatusConnected
	out := c.out
	c.mu.Unlock()

	c.wg.Add(1)
	go c.writeLoop(conn, out)

	c.logger.Info("live channel open", "model", setup.Model)
	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	// The reader starts after OnOpen so no message can be observed before the open event.
	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// SendAudio queues an audio chunk. It never blocks and reports false when the
// channel is not open.
func (c *Client) SendAudio(b types.Blob) bool {
	if c.enqueue(outboundFrame{kind: frameAudio, blob: b}, false) {
		c.sentAudio.Add(1)
		return true
	}
	return false
}

// SendFrame queues a video frame behind any earlier media.
func (c *Client) SendFrame(b types.Blob) bool {
	if c.enqueue(outboundFrame{kind: frameVideo, blob: b}, false) {
		c.sentFrames.Add(1)
		return true
	}
	return false
}

// SendToolResponses queues responses ahead of pending media.
func (c *Client) SendToolResponses(responses []types.ToolResponse) bool {
	if len(responses) == 0 {
		return false
	}
	return c.enqueue(outboundFrame{kind: frameToolResponse, responses: responses}, true)
}

func (c *Client) enqueue(f outboundFrame, priority bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusConnected || c.out == nil {
		c.rejected.Add(1)
		return false
	}
	return c.out.push(f, priority)
}

// Pending returns the number of frames waiting for the transport.
func (c *Client) Pending() int {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return 0
	}
	return out.len()
}

// Close ends the channel. It is idempotent and safe in any state; OnClose fires
// once if the client had started connecting.
func (c *Client) Close() error {
	c.mu.Lock()
	prev := c.status
	if prev.Terminal() {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusClosed
	cancel, conn, out, cb := c.cancel, c.conn, c.out, c.cb
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if out != nil {
		if dropped := out.close(); dropped > 0 {
			c.logger.Debug("live channel closed with unsent frames", "dropped", dropped)
		}
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if prev != StatusIdle && cb.OnClose != nil {
		cb.OnClose()
	}
	c.logger.Info("live channel closed", "from", prev.String())
	return err
}

// Wait blocks until the reader and writer goroutines have exited.
func (c *Client) Wait() { c.wg.Wait() }

func (c *Client) writeLoop(conn Conn, out *outbox) {
	defer c.wg.Done()
	for {
		f, ok := out.next()
		if !ok {
			return
		}
		if err := writeFrame(conn, f); err != nil {
			c.fail(&ConnectionError{Op: "send", Err: err})
			return
		}
	}
}

func (c *Client) readLoop(conn Conn) {
	defer c.wg.Done()
	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.remoteClosed()
				return
			}
			c.fail(&ConnectionError{Op: "receive", Err: err})
			return
		}
		if c.Status() != StatusConnected {
			return
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(msg)
		}
	}
}

func (c *Client) remoteClosed() {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.status = StatusClosed
	out, conn, cb := c.out, c.conn, c.cb
	c.mu.Unlock()

	if out != nil {
		out.close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info("live channel closed by server")
	if cb.OnClose != nil {
		cb.OnClose()
	}
}

// fail moves the client to Errored and reports err exactly once. Errors that
// arrive after the client is already terminal are dropped.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.status = StatusErrored
	c.closeErr = err
	out, conn, cb := c.out, c.conn, c.cb
	c.mu.Unlock()

	if out != nil {
		out.close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Warn("live channel failed", "error", err)
	c.errOnce.Do(func() {
		if cb.OnError != nil {
			cb.OnError(err)
		}
	})
}

// Err returns the error that moved the client to Errored, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Stats counts accepted and rejected sends.
type Stats struct {
	Audio    uint64
	Frames   uint64
	Rejected uint64
}

func (c *Client) Stats() Stats {
	return Stats{
		Audio:    c.sentAudio.Load(),
		Frames:   c.sentFrames.Load(),
		Rejected: c.rejected.Load(),
	}
}
