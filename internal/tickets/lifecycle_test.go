package tickets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
)

// fakeBackend counts calls and can block until released, simulating a slow
// network while further user actions arrive.
type fakeBackend struct {
	mu           sync.Mutex
	replyCalls   int
	resolveCalls int
	block        chan struct{}
	err          error
}

func (f *fakeBackend) Reply(ctx context.Context, id int64, message string) error {
	f.mu.Lock()
	f.replyCalls++
	f.mu.Unlock()
	return f.err
}

func (f *fakeBackend) Resolve(ctx context.Context, id int64) error {
	f.mu.Lock()
	f.resolveCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.err
}

func newController(b *fakeBackend) (*Controller, *notify.Queue) {
	queue := notify.NewQueue(time.Minute)
	c := NewController(b, queue, zap.NewNop())
	c.resolveDelay = time.Millisecond
	return c, queue
}

func TestReplyRejectsEmptyTextWithoutNetworkCall(t *testing.T) {
	b := &fakeBackend{}
	c, queue := newController(b)

	if err := c.Reply(context.Background(), 1, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if b.replyCalls != 0 {
		t.Fatalf("network called %d times for invalid input", b.replyCalls)
	}
	snap := queue.Snapshot()
	if len(snap) != 1 || snap[0].Kind != notify.KindWarning {
		t.Fatalf("expected one warning, got %+v", snap)
	}
}

func TestReplyTriggersRefetch(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newController(b)

	var refetched int64
	c.OnReplied = func(id int64) { refetched = id }

	if err := c.Reply(context.Background(), 9, "bonjour"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if refetched != 9 {
		t.Fatalf("refetch for ticket %d", refetched)
	}
}

func TestResolveRejectedOnResolvedTicket(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newController(b)

	tk := api.Ticket{ID: 4, Status: api.StatusResolved}
	if err := c.Resolve(context.Background(), tk); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if b.resolveCalls != 0 {
		t.Fatal("resolved ticket still produced a network call")
	}
}

func TestConcurrentResolveIssuesSingleCall(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	c, _ := newController(b)

	tk := api.Ticket{ID: 5, Status: api.StatusOpen}

	first := make(chan error, 1)
	go func() { first <- c.Resolve(context.Background(), tk) }()

	// Wait for the first call to be in flight.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		calls := b.resolveCalls
		b.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first resolve never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Second click while the first is pending: no-op, no extra call.
	if err := c.Resolve(context.Background(), tk); !errors.Is(err, ErrResolvePending) {
		t.Fatalf("expected ErrResolvePending, got %v", err)
	}

	close(b.block)
	if err := <-first; err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if b.resolveCalls != 1 {
		t.Fatalf("expected exactly one resolve call, got %d", b.resolveCalls)
	}
}

func TestResolveSchedulesDelayedRefetch(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newController(b)

	done := make(chan int64, 1)
	c.OnResolved = func(id int64) { done <- id }

	if err := c.Resolve(context.Background(), api.Ticket{ID: 6, Status: api.StatusAssigned}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	select {
	case id := <-done:
		if id != 6 {
			t.Fatalf("refetch for ticket %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed refetch never fired")
	}
}

func TestBackendDetailShownVerbatim(t *testing.T) {
	b := &fakeBackend{err: &api.RequestError{StatusCode: 409, Detail: "ticket déjà clôturé"}}
	c, queue := newController(b)

	if err := c.Resolve(context.Background(), api.Ticket{ID: 7, Status: api.StatusOpen}); err == nil {
		t.Fatal("expected error")
	}
	snap := queue.Snapshot()
	if len(snap) != 1 || snap[0].Message != "ticket déjà clôturé" || snap[0].Kind != notify.KindError {
		t.Fatalf("unexpected notifications: %+v", snap)
	}
}

func TestUnauthorizedRoutedToHandler(t *testing.T) {
	b := &fakeBackend{err: api.ErrUnauthorized}
	c, queue := newController(b)

	called := false
	c.OnUnauthorized = func() { called = true }

	_ = c.Reply(context.Background(), 8, "texte")
	if !called {
		t.Fatal("401 not routed to the unauthorized handler")
	}
	if len(queue.Snapshot()) != 0 {
		t.Fatal("401 must not surface as raw error text")
	}
}
