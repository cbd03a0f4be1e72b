package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/model"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory MessageStore with the same window semantics as
// the MySQL repository.
type memStore struct {
	mu         sync.Mutex
	clock      *fakeClock
	users      map[string]string
	msgs       []model.Message
	failCreate error
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{clock: clock, users: map[string]string{}}
}

func (s *memStore) FindRecentDuplicate(_ context.Context, authorID, body string, window time.Duration) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		m := s.msgs[i]
		if m.AuthorID == authorID && m.Body == body && !m.CreatedAt.Before(now.Add(-window)) && m.CreatedAt.Before(now) {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, in model.NewMessage) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return nil, s.failCreate
	}
	if in.Body == nil {
		return nil, errors.New("validation failed")
	}
	m := model.Message{
		ID:        uuid.NewString(),
		AuthorID:  in.AuthorID,
		Body:      *in.Body,
		ThreadID:  in.ThreadID,
		ReplyToID: in.ReplyToID,
		ImageRef:  in.ImageRef,
		CreatedAt: s.clock.Now(),
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID != id {
			continue
		}
		out := m
		out.Author = &model.UserRef{ID: m.AuthorID, Username: s.users[m.AuthorID]}
		if m.ReplyToID != nil {
			for _, r := range s.msgs {
				if r.ID == *m.ReplyToID {
					rr := r
					rr.Author = &model.UserRef{ID: r.AuthorID, Username: s.users[r.AuthorID]}
					out.ReplyTo = &rr
				}
			}
		}
		return &out, nil
	}
	return nil, errors.New("not found")
}

func (s *memStore) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Body
	}
	return out
}

// recorder collects frames, standing in for sessions and the hub.
type recorder struct {
	mu     sync.Mutex
	frames []Envelope
}

func (r *recorder) Deliver(frame []byte) bool {
	r.record(frame)
	return true
}

func (r *recorder) Broadcast(frame []byte) { r.record(frame) }

func (r *recorder) record(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.frames = append(r.frames, env)
	r.mu.Unlock()
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Event
	}
	return out
}
