// Package sessions tracks the live sessions running in this process so the CLI
// can refuse a second one and drain them on shutdown.
package sessions

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionActive is returned by Register when the tracker is at its limit.
var ErrSessionActive = errors.New("sessions: a live session is already running")

// Handle is how the tracker reaches a running session. Cancel stops it and
// returns once teardown is done; Notify shows a short message without stopping
// it. Either may be nil.
type Handle struct {
	Cancel func()
	Notify func(notice string)
}

// Tracker registers sessions by id. Limit caps concurrent sessions; zero means one.
type Tracker struct {
	limit int

	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = 1
	}
	return &Tracker{
		limit:    limit,
		sessions: make(map[string]*trackedSession),
	}
}

// Register adds a session and returns the func that removes it. Registering an
// id again replaces the old entry; a new id beyond the limit gets ErrSessionActive.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	if _, dup := t.sessions[sessionID]; !dup && len(t.sessions) >= t.limit {
		t.mu.Unlock()
		return func() {}, ErrSessionActive
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.release(old)
	}

	return func() { t.unregister(sessionID, entry) }, nil
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// release drops a replaced entry without touching the map slot it used to own.
func (t *Tracker) release(entry *trackedSession) {
	entry.once.Do(t.wg.Done)
}

// Count returns the number of registered sessions.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// handles copies the registered handles so callbacks run without the lock held.
func (t *Tracker) handles() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.sessions))
	for _, entry := range t.sessions {
		if entry != nil {
			out = append(out, entry.handle)
		}
	}
	return out
}

// NotifyAll shows notice in every session that accepts notices.
func (t *Tracker) NotifyAll(notice string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Notify != nil {
			h.Notify(notice)
			sent++
		}
	}
	return sent
}

// CancelAll stops every session. Sessions unregister themselves as they finish.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles() {
		if h.Cancel != nil {
			h.Cancel()
			canceled++
		}
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx is done.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
