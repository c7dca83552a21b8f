package audio

import (
	"errors"
	"sync"
)

// Source delivers captured samples in device-sized periods.
type Source interface {
	Subscribe(fn func(samples []float32)) (cancel func())
}

// InputContext is the 16 kHz capture graph: it re-blocks device periods into
// fixed-size blocks and hands each block to the connected processor.
type InputContext struct {
	src       Source
	blockSize int

	mu        sync.Mutex
	pending   []float32
	process   func([]float32)
	cancel    func()
	closed    bool
	delivered int
}

// NewInputContext binds a context to a capture source. Nothing flows until Resume.
func NewInputContext(src Source, blockSize int) *InputContext {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	return &InputContext{src: src, blockSize: blockSize}
}

// Connect attaches the processing node. Blocks are delivered synchronously on the
// capture goroutine, so fn must not block.
func (c *InputContext) Connect(fn func(block []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.process = fn
}

// Disconnect detaches the processing node and discards any partial block.
func (c *InputContext) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.process = nil
	c.pending = c.pending[:0]
}

// Resume starts pulling samples from the source.
func (c *InputContext) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("audio: input context closed")
	}
	if c.cancel != nil || c.src == nil {
		return nil
	}
	c.cancel = c.src.Subscribe(c.feed)
	return nil
}

// Close unsubscribes from the source. Safe to call more than once.
func (c *InputContext) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.closed = true
	c.process = nil
	c.pending = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Delivered returns how many full blocks reached a processor.
func (c *InputContext) Delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

func (c *InputContext) feed(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process == nil || c.closed {
		return
	}
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.blockSize {
		block := make([]float32, c.blockSize)
		copy(block, c.pending[:c.blockSize])
		c.pending = append(c.pending[:0], c.pending[c.blockSize:]...)
		c.delivered++
		c.process(block)
	}
}
