package session

import (
	"sync"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

type eventKind int

const (
	evConnecting eventKind = iota
	evOpened
	evAudioReceived
	evToolCallReceived
	evInterrupted
	evPlaybackEnded
	evNavigate
	evNotice
	evFailed
	evClosed
	evErrored
	evStop
)

var eventNames = [...]string{
	evConnecting:       "connecting",
	evOpened:           "opened",
	evAudioReceived:    "audio_received",
	evToolCallReceived: "tool_call_received",
	evInterrupted:      "interrupted",
	evPlaybackEnded:    "playback_ended",
	evNavigate:         "navigate",
	evNotice:           "notice",
	evFailed:           "failed",
	evClosed:           "closed",
	evErrored:          "errored",
	evStop:             "stop",
}

func (k eventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// event is one entry in the session's ordered inbound queue.
type event struct {
	kind eventKind

	audio    [][]byte
	calls    []types.ToolCall
	unitID   uint64
	index    int
	relative bool
	notice   string
	err      error
}

// queue is an unbounded FIFO. Producers never block; one consumer drains it.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []event
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends ev and reports whether the queue still accepts events.
func (q *queue) push(ev event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
	return true
}

// next blocks until an event is available. ok is false once the queue is closed and empty.
func (q *queue) next() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return event{}, false
	}
	ev := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return ev, true
}

// close stops accepting events and returns how many were still queued.
func (q *queue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.items)
	q.items = nil
	q.cond.Broadcast()
	return n
}
