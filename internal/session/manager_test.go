package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
	"github.com/resolvehub/songra/internal/schedule"
)

type fakeLoginAPI struct {
	calls  int
	result *api.LoginResult
	err    error
}

func (f *fakeLoginAPI) Login(ctx context.Context, email, password string) (*api.LoginResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestManager(f *fakeLoginAPI) (*Manager, *notify.Queue, *MemoryStorage) {
	store := NewMemoryStorage()
	queue := notify.NewQueue(time.Minute)
	m := NewManager(store, queue, zap.NewNop())
	m.SetClient(f)
	return m, queue, store
}

func TestEmptyCredentialsRejectedWithoutNetworkCall(t *testing.T) {
	f := &fakeLoginAPI{}
	m, q, _ := newTestManager(f)

	for _, creds := range [][2]string{{"", "secret"}, {"a@b.cd", ""}, {"  ", "  "}} {
		if _, err := m.Login(context.Background(), creds[0], creds[1]); !errors.Is(err, ErrEmptyCredentials) {
			t.Fatalf("creds %q: err = %v", creds, err)
		}
	}
	if f.calls != 0 {
		t.Fatalf("login calls = %d", f.calls)
	}
	for _, n := range q.Snapshot() {
		if n.Kind != notify.KindWarning {
			t.Fatalf("unexpected notification %+v", n)
		}
	}
}

func TestLoginFailureShowsGenericMessageOnly(t *testing.T) {
	f := &fakeLoginAPI{err: &api.RequestError{StatusCode: 401, Detail: "user not in database table experts"}}
	m, q, _ := newTestManager(f)

	if _, err := m.Login(context.Background(), "a@b.cd", "secret"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := m.Token(); ok {
		t.Fatal("token set after failed login")
	}

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("notifications = %+v", snap)
	}
	if snap[0].Message != "Identifiants invalides ou serveur indisponible" {
		t.Fatalf("message = %q", snap[0].Message)
	}
}

func TestLoginPersistsSessionForRestore(t *testing.T) {
	f := &fakeLoginAPI{result: &api.LoginResult{
		Token:  "tok-1",
		Expert: api.Expert{ID: "exp-9", Name: "Awa"},
	}}
	m, _, store := newTestManager(f)

	id, err := m.Login(context.Background(), "a@b.cd", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.ExpertName != "Awa" {
		t.Fatalf("identity = %+v", id)
	}
	if tok, ok := m.Token(); !ok || tok != "tok-1" {
		t.Fatalf("token = %q, %v", tok, ok)
	}

	// A second manager over the same storage picks the session back up.
	m2 := NewManager(store, notify.NewQueue(time.Minute), zap.NewNop())
	if !m2.Restore() {
		t.Fatal("restore failed")
	}
	if id2, ok := m2.Identity(); !ok || id2.ExpertID != "exp-9" {
		t.Fatalf("restored identity = %+v, %v", id2, ok)
	}
}

func TestRestoreWithoutPersistedSession(t *testing.T) {
	m, _, _ := newTestManager(&fakeLoginAPI{})
	if m.Restore() {
		t.Fatal("restore succeeded with empty storage")
	}
	if _, ok := m.Token(); ok {
		t.Fatal("token present")
	}
}

func TestUnauthorizedTearsDownLikeLogout(t *testing.T) {
	f := &fakeLoginAPI{result: &api.LoginResult{Token: "tok-1", Expert: api.Expert{ID: "exp-9"}}}
	m, q, store := newTestManager(f)

	sched := schedule.NewScheduler()
	m.OnReset(sched.Stop)

	if _, err := m.Login(context.Background(), "a@b.cd", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	sched.Start(time.Hour, func() {})
	q.Push("ancienne notification", notify.KindInfo)

	m.OnUnauthorized()

	if _, ok := m.Token(); ok {
		t.Fatal("token survived 401")
	}
	if sched.Running() {
		t.Fatal("refresh loop still running")
	}
	if _, _, err := store.LoadSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("persisted session survived: %v", err)
	}

	// Pre-teardown notifications are gone; only the session-expired
	// message remains.
	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Message != "Session expirée, veuillez vous reconnecter" {
		t.Fatalf("notifications = %+v", snap)
	}
}

func TestLogoutMessageDiffersFromExpiry(t *testing.T) {
	f := &fakeLoginAPI{result: &api.LoginResult{Token: "tok-1"}}
	m, q, _ := newTestManager(f)

	if _, err := m.Login(context.Background(), "a@b.cd", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	m.Logout()

	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Message != "Déconnexion réussie" {
		t.Fatalf("notifications = %+v", snap)
	}
}
