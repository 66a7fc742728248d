package ingest

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrSessionClosed  = errors.New("scan session is closed")
)

// Session is the token for the one scan allowed at a time. Messages are
// processed only under an open Session.
type Session struct {
	ID        string
	StartedAt time.Time

	sem    *semaphore.Weighted
	mu     sync.Mutex
	closed bool
}

func newSession(sem *semaphore.Weighted, now time.Time) *Session {
	return &Session{ID: uuid.NewString(), StartedAt: now, sem: sem}
}

// End releases the scan slot. It is safe to call more than once.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sem.Release(1)
}

func (s *Session) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}
