// Package events is the arbiter's broadcast-only notification stream. It is
// not authoritative state: subscribers that fall behind lose the oldest
// messages, and publishing never blocks.
package events

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultBacklog is the number of recent events kept for late subscribers.
const DefaultBacklog = 100

type Event struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Session string    `json:"session,omitempty"`
	Message string    `json:"message"`
}

type Option func(*Log)

func WithClock(c clock.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// WithDropHook is called, with the log lock held, once per event a lagging
// subscriber lost.
func WithDropHook(fn func()) Option {
	return func(l *Log) { l.onDrop = fn }
}

type Log struct {
	mu      sync.Mutex
	clock   clock.Clock
	backlog int
	onDrop  func()

	seq    uint64
	recent []Event // ring of the last backlog events, oldest first
	subs   map[*Subscription]struct{}
}

func New(backlog int, opts ...Option) *Log {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	l := &Log{
		clock:   clock.New(),
		backlog: backlog,
		subs:    map[*Subscription]struct{}{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Publish appends a message and fans it out to current subscribers.
func (l *Log) Publish(kind, session, message string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev := Event{
		Seq:     l.seq,
		Time:    l.clock.Now().UTC(),
		Kind:    kind,
		Session: session,
		Message: message,
	}
	if len(l.recent) == l.backlog {
		copy(l.recent, l.recent[1:])
		l.recent = l.recent[:len(l.recent)-1]
	}
	l.recent = append(l.recent, ev)

	for s := range l.subs {
		s.deliver(ev, l.onDrop)
	}
	return ev
}

// Recent returns up to backlog of the newest events, oldest first.
func (l *Log) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.recent...)
}

// Subscribe registers a subscriber that receives every event published after
// the call. Close it when done.
func (l *Log) Subscribe() *Subscription {
	ch := make(chan Event, l.backlog)
	s := &Subscription{C: ch, ch: ch, log: l}
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()
	return s
}

func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	log    *Log
	lagged uint64 // guarded by log.mu
	closed bool   // guarded by log.mu
}

// deliver never blocks: when the buffer is full the oldest queued event is
// discarded to make room.
func (s *Subscription) deliver(ev Event, onDrop func()) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.lagged++
			if onDrop != nil {
				onDrop()
			}
		default:
		}
	}
}

// Lagged returns how many events this subscriber has lost.
func (s *Subscription) Lagged() uint64 {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.lagged
}

// Close unregisters the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.log.subs, s)
	close(s.ch)
}
