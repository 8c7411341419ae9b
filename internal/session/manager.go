package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
)

var ErrEmptyCredentials = errors.New("empty credentials")

// loginAPI is the slice of the backend client the manager needs. The client
// itself pulls the token back out of the manager, so it is attached after
// construction.
type loginAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResult, error)
}

// Manager owns the authentication token and current identity. Everything that
// talks to the backend reads the token through Token; 401 responses are
// funneled into OnUnauthorized, which tears the session down exactly like a
// voluntary logout apart from the user-facing message.
type Manager struct {
	store  Storage
	queue  *notify.Queue
	logger *zap.Logger

	mu       sync.Mutex
	api      loginAPI
	token    string
	identity Identity
	hooks    []func()
}

func NewManager(store Storage, queue *notify.Queue, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

func (m *Manager) SetClient(c loginAPI) {
	m.mu.Lock()
	m.api = c
	m.mu.Unlock()
}

// OnReset registers a teardown hook run on logout and on forced session loss
// (stop the scheduler, clear ticket state, reset the view).
func (m *Manager) OnReset(hook func()) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

// Token is the api.TokenSource for this session.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *Manager) Identity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.token != ""
}

// Restore loads a previously persisted session, if any.
func (m *Manager) Restore() bool {
	token, id, err := m.store.LoadSession()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.logger.Warn("failed to restore session", zap.Error(err))
		}
		return false
	}

	m.mu.Lock()
	m.token = token
	m.identity = id
	m.mu.Unlock()
	return true
}

func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		m.queue.Push("Veuillez entrer email et mot de passe", notify.KindWarning)
		return Identity{}, ErrEmptyCredentials
	}

	m.mu.Lock()
	client := m.api
	m.mu.Unlock()

	result, err := client.Login(ctx, email, password)
	if err != nil {
		// Never surface the server's own error text for a failed login.
		m.queue.Push("Identifiants invalides ou serveur indisponible", notify.KindError)
		m.logger.Warn("login failed", zap.Error(err))
		return Identity{}, err
	}

	id := Identity{ExpertID: result.Expert.ID, ExpertName: result.Expert.Name}

	m.mu.Lock()
	m.token = result.Token
	m.identity = id
	m.mu.Unlock()

	if err := m.store.SaveSession(result.Token, id); err != nil {
		m.logger.Warn("failed to persist session", zap.Error(err))
	}

	m.queue.Push("Connexion réussie !", notify.KindSuccess)
	return id, nil
}

// Logout is the voluntary teardown.
func (m *Manager) Logout() {
	m.teardown()
	m.queue.Push("Déconnexion réussie", notify.KindInfo)
}

// OnUnauthorized is invoked by any caller that received a 401. Same effect as
// Logout, distinguished only by the message shown.
func (m *Manager) OnUnauthorized() {
	m.teardown()
	m.queue.Push("Session expirée, veuillez vous reconnecter", notify.KindWarning)
}

func (m *Manager) teardown() {
	m.mu.Lock()
	m.token = ""
	m.identity = Identity{}
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if err := m.store.DeleteSession(); err != nil {
		m.logger.Warn("failed to delete persisted session", zap.Error(err))
	}

	// Hooks stop the refresh loop and clear dependent state; the queue is
	// cleared last so their pending timers cannot fire into a dead session.
	for _, hook := range hooks {
		hook()
	}
	m.queue.Clear()
}
