// Package stream is the client side of the live model channel: one duplex
// connection carrying microphone audio and camera frames up, and speech and
// tool calls down.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

// Status is the connection state. Transitions only move forward:
// Idle -> Connecting -> Connected -> Closed | Errored.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusClosed:
		return "CLOSED"
	case StatusErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusClosed || s == StatusErrored }

// Setup is sent once when the channel opens.
type Setup struct {
	Model       string
	Instruction string
	Voice       string
	Tools       []types.Tool
}

// Message is one inbound server message reduced to what the session acts on.
type Message struct {
	Audio        [][]byte
	ToolCalls    []types.ToolCall
	Interrupted  bool
	TurnComplete bool
	GoAway       bool
	// Dropped counts inbound audio payloads discarded because they could not be decoded.
	Dropped int
}

func (m Message) empty() bool {
	return len(m.Audio) == 0 && len(m.ToolCalls) == 0 && !m.Interrupted && !m.TurnComplete && !m.GoAway && m.Dropped == 0
}

// Conn is an open live channel. Send methods are called from one goroutine and
// Receive from another.
type Conn interface {
	SendAudio(types.Blob) error
	SendFrame(types.Blob) error
	SendToolResponses([]types.ToolResponse) error
	// Receive blocks for the next non-empty message. A clean remote close is io.EOF.
	Receive() (Message, error)
	Close() error
}

// Dialer opens a Conn and completes the setup handshake.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Conn, error)
}

var (
	ErrAlreadyStarted = errors.New("stream: client already started")
	ErrClosed         = errors.New("stream: client closed")
)

// ConnectionError is a ConnectionFailed condition raised by the transport.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("live connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
