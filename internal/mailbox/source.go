// Package mailbox defines the message source the scanner reads from and a
// JSON fixture implementation of it.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

var ErrMessageNotFound = errors.New("message not found")

// Message is the header view of one mailbox message. The body is fetched
// separately because it is the expensive call.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	ReceivedAt time.Time `json:"received_at"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
}

// Query bounds a listing by received time. Zero values are open ends.
type Query struct {
	After  time.Time
	Before time.Time
}

func (q Query) matches(t time.Time) bool {
	if !q.After.IsZero() && t.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && !t.Before(q.Before) {
		return false
	}
	return true
}

type Source interface {
	// List returns matching messages ordered by ReceivedAt ascending.
	List(ctx context.Context, q Query) ([]Message, error)
	FetchBody(ctx context.Context, id string) (string, error)
}

// FixtureMessage is one entry of a fixture mailbox file.
type FixtureMessage struct {
	Message
	Body string `json:"body"`
}

// FileSource serves messages from a JSON fixture, an array of
// FixtureMessage objects.
type FileSource struct {
	mu     sync.RWMutex
	msgs   []Message
	bodies map[string]string
}

// LoadFile reads a fixture mailbox from disk.
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox fixture: %w", err)
	}
	var fixture []FixtureMessage
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse mailbox fixture %s: %w", path, err)
	}
	return NewFileSource(fixture), nil
}

func NewFileSource(fixture []FixtureMessage) *FileSource {
	s := &FileSource{bodies: make(map[string]string, len(fixture))}
	for _, m := range fixture {
		s.add(m)
	}
	return s
}

// Add appends a message, e.g. when a test delivers mail mid-scenario.
func (s *FileSource) Add(m FixtureMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(m)
}

func (s *FileSource) add(m FixtureMessage) {
	s.msgs = append(s.msgs, m.Message)
	s.bodies[m.ID] = m.Body
}

func (s *FileSource) List(ctx context.Context, q Query) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, m := range s.msgs {
		if q.matches(m.ReceivedAt) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (s *FileSource) FetchBody(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.bodies[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return body, nil
}

// Compile-time interface check
var _ Source = (*FileSource)(nil)
