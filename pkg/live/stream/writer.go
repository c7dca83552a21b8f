package stream

import (
	"sync"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

type frameKind int

const (
	frameAudio frameKind = iota
	frameVideo
	frameToolResponse
)

type outboundFrame struct {
	kind      frameKind
	blob      types.Blob
	responses []types.ToolResponse
}

// outbox is the two-lane send queue. Tool responses take the priority lane;
// audio and video share the normal lane so their relative order is preserved.
// Neither lane is bounded: audio is never dropped while the channel is open.
type outbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	priority []outboundFrame
	normal   []outboundFrame
	closed   bool
}

func newOutbox() *outbox {
	o := &outbox{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(f outboundFrame, priority bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if priority {
		o.priority = append(o.priority, f)
	} else {
		o.normal = append(o.normal, f)
	}
	o.cond.Signal()
	return true
}

// next blocks until a frame is available. Priority frames are always served
// first. Once closed, nothing further is handed out.
func (o *outbox) next() (outboundFrame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.priority) == 0 && len(o.normal) == 0 && !o.closed {
		o.cond.Wait()
	}
	if o.closed {
		return outboundFrame{}, false
	}
	if len(o.priority) > 0 {
		f := o.priority[0]
		o.priority[0] = outboundFrame{}
		o.priority = o.priority[1:]
		return f, true
	}
	f := o.normal[0]
	o.normal[0] = outboundFrame{}
	o.normal = o.normal[1:]
	return f, true
}

func (o *outbox) close() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	dropped := len(o.priority) + len(o.normal)
	o.closed = true
	o.priority = nil
	o.normal = nil
	o.cond.Broadcast()
	return dropped
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.priority) + len(o.normal)
}

func writeFrame(conn Conn, f outboundFrame) error {
	switch f.kind {
	case frameAudio:
		return conn.SendAudio(f.blob)
	case frameVideo:
		return conn.SendFrame(f.blob)
	case frameToolResponse:
		return conn.SendToolResponses(f.responses)
	}
	return nil
}
