package notify

import (
	"sync"
	"time"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

type Notification struct {
	ID        int64
	Message   string
	Kind      Kind
	CreatedAt time.Time
}

// Listener is invoked synchronously for every pushed notification, so a UI
// can render it immediately without polling Snapshot.
type Listener func(Notification)

const DefaultTTL = 5 * time.Second

// Queue is a time-bounded event log. Every entry self-expires after the TTL
// unless dismissed earlier; Clear cancels all pending expirations so no timer
// outlives a torn-down session.
type Queue struct {
	mu       sync.Mutex
	ttl      time.Duration
	lastID   int64
	items    []Notification
	timers   map[int64]*time.Timer
	listener Listener
}

func NewQueue(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		ttl:    ttl,
		timers: make(map[int64]*time.Timer),
	}
}

func (q *Queue) SetListener(l Listener) {
	q.mu.Lock()
	q.listener = l
	q.mu.Unlock()
}

func (q *Queue) Push(message string, kind Kind) int64 {
	q.mu.Lock()

	id := time.Now().UnixNano()
	if id <= q.lastID {
		id = q.lastID + 1
	}
	q.lastID = id

	n := Notification{ID: id, Message: message, Kind: kind, CreatedAt: time.Now()}
	q.items = append(q.items, n)
	q.timers[id] = time.AfterFunc(q.ttl, func() { q.Dismiss(id) })
	listener := q.listener
	q.mu.Unlock()

	if listener != nil {
		listener(n)
	}
	return id
}

// Dismiss removes the notification and cancels its expiration. Calling it for
// an id that already expired is a no-op.
func (q *Queue) Dismiss(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

// Clear empties the queue and cancels every pending expiration. Must run
// before logout so no timer fires against a torn-down session.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.items = nil
}

func (q *Queue) Snapshot() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}
