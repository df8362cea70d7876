package orchestrator

import (
	"context"
	"sync"
)

// sessionLock is a one-token semaphore. Unlike sync.Mutex it supports
// context-bounded acquisition and forcible release from another goroutine,
// which Recover needs to unstick a wedged turn. Generations guard against a
// forcibly-released holder returning its stale token underneath a new owner.
type sessionLock struct {
	ch  chan struct{}
	mu  sync.Mutex
	gen uint64
}

func newSessionLock() *sessionLock {
	l := &sessionLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// acquire takes the lock and returns the generation the caller must pass
// back to release.
func (l *sessionLock) acquire(ctx context.Context) (uint64, error) {
	select {
	case <-l.ch:
		l.mu.Lock()
		gen := l.gen
		l.mu.Unlock()
		return gen, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// release returns the token if the caller's generation is still current; a
// holder that was forcibly released holds a stale generation and becomes a
// no-op.
func (l *sessionLock) release(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// forceRelease invalidates the current holder and returns the token.
func (l *sessionLock) forceRelease() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// lockTable tracks per-session locks and the cancel function of each
// in-flight turn. Locks for different sessions are fully independent.
type lockTable struct {
	mu       sync.Mutex
	locks    map[string]*sessionLock
	inflight map[string]context.CancelFunc
}

func newLockTable() *lockTable {
	return &lockTable{
		locks:    make(map[string]*sessionLock),
		inflight: make(map[string]context.CancelFunc),
	}
}

func (t *lockTable) lockFor(sessionID string) *sessionLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = newSessionLock()
		t.locks[sessionID] = l
	}
	return l
}

func (t *lockTable) setInflight(sessionID string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[sessionID] = cancel
}

func (t *lockTable) clearInflight(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, sessionID)
}

func (t *lockTable) activeTurns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// abort cancels the session's in-flight turn, if any, and force-releases its
// lock. Returns whether a turn was actually in flight.
func (t *lockTable) abort(sessionID string) bool {
	t.mu.Lock()
	cancel, active := t.inflight[sessionID]
	delete(t.inflight, sessionID)
	l := t.locks[sessionID]
	t.mu.Unlock()

	if active {
		cancel()
	}
	if l != nil {
		l.forceRelease()
	}
	return active
}
