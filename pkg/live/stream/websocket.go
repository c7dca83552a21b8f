package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/protocol"
)

const DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// WebSocketDialer speaks the BidiGenerateContent JSON protocol directly.
type WebSocketDialer struct {
	URL          string
	APIKey       string
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	Logger       *slog.Logger
}

func (d *WebSocketDialer) Dial(ctx context.Context, setup Setup) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimSpace(d.URL)
	if endpoint == "" {
		endpoint = DefaultLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}

	c := &wsConn{
		ws:           ws,
		writeTimeout: d.WriteTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 5 * time.Second
	}

	// Unblock the handshake read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	err = c.handshake(setup)
	if !stop() || err != nil {
		_ = ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	pingInterval := d.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	go c.pingLoop(pingInterval)
	return c, nil
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) handshake(setup Setup) error {
	frame := protocol.NewSetup(setup.Model, setup.Instruction, setup.Voice, setup.Tools)
	if err := c.writeJSON(frame); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("await setupComplete: %w", err)
		}
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			c.logger.Debug("ignoring frame during handshake", "error", err)
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				c.logger.Debug("live ping failed", "error", err)
				return
			}
		}
	}
}

func (c *wsConn) SendAudio(b types.Blob) error {
	return c.writeJSON(protocol.NewAudioInput(b))
}

func (c *wsConn) SendFrame(b types.Blob) error {
	return c.writeJSON(protocol.NewVideoInput(b))
}

func (c *wsConn) SendToolResponses(responses []types.ToolResponse) error {
	return c.writeJSON(protocol.NewToolResponse(responses))
}

func (c *wsConn) Receive() (Message, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Message{}, io.EOF
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return Message{}, fmt.Errorf("server closed channel: code %d: %s", ce.Code, ce.Text)
			}
			return Message{}, err
		}
		frame, err := protocol.DecodeServerMessage(data)
		if err != nil {
			c.logger.Debug("ignoring server frame", "error", err)
			continue
		}
		msg := messageFromFrame(frame, c.logger)
		if msg.empty() {
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

func messageFromFrame(frame protocol.ServerMessage, logger *slog.Logger) Message {
	var msg Message
	if sc := frame.ServerContent; sc != nil {
		msg.Interrupted = sc.Interrupted
		msg.TurnComplete = sc.TurnComplete
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					logger.Warn("dropping malformed audio payload", "error", err)
					msg.Dropped++
					continue
				}
				msg.Audio = append(msg.Audio, pcm)
			}
		}
	}
	if tc := frame.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if frame.GoAway != nil {
		msg.GoAway = true
	}
	return msg
}
