package notify

import (
	"testing"
	"time"
)

func TestPushAssignsMonotonicIDs(t *testing.T) {
	q := NewQueue(time.Minute)
	var last int64
	for i := 0; i < 100; i++ {
		id := q.Push("msg", KindInfo)
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
	if got := len(q.Snapshot()); got != 100 {
		t.Fatalf("expected 100 queued notifications, got %d", got)
	}
}

func TestNotificationExpiresAfterTTL(t *testing.T) {
	q := NewQueue(20 * time.Millisecond)
	q.Push("transient", KindSuccess)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(q.Snapshot()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("notification still present after TTL")
}

func TestDismissRemovesImmediately(t *testing.T) {
	q := NewQueue(time.Minute)
	id := q.Push("will dismiss", KindWarning)
	q.Push("stays", KindInfo)

	q.Dismiss(id)

	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Message != "stays" {
		t.Fatalf("unexpected queue after dismiss: %+v", snap)
	}

	// Dismissing again is a no-op.
	q.Dismiss(id)
	if len(q.Snapshot()) != 1 {
		t.Fatal("second dismiss mutated the queue")
	}
}

func TestClearCancelsPendingTimers(t *testing.T) {
	q := NewQueue(30 * time.Millisecond)
	for i := 0; i < 5; i++ {
		q.Push("pending", KindError)
	}
	q.Clear()
	if len(q.Snapshot()) != 0 {
		t.Fatal("queue not empty after clear")
	}

	// A push after clear must not be swept by a stale timer belonging to a
	// cleared entry.
	q2 := NewQueue(time.Minute)
	q2.Push("fresh", KindInfo)
	time.Sleep(60 * time.Millisecond)
	if len(q2.Snapshot()) != 1 {
		t.Fatal("fresh notification disappeared")
	}
}

func TestListenerReceivesPushes(t *testing.T) {
	q := NewQueue(time.Minute)
	var got []Notification
	q.SetListener(func(n Notification) { got = append(got, n) })

	q.Push("a", KindInfo)
	q.Push("b", KindError)

	if len(got) != 2 || got[0].Message != "a" || got[1].Kind != KindError {
		t.Fatalf("listener saw %+v", got)
	}
}
