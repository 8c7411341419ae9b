package tickets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
)

var (
	ErrEmptyMessage    = errors.New("empty reply message")
	ErrAlreadyResolved = errors.New("ticket already resolved")
	ErrResolvePending  = errors.New("resolve already in flight")
)

// backend is the slice of the API the controller needs.
type backend interface {
	Reply(ctx context.Context, id int64, message string) error
	Resolve(ctx context.Context, id int64) error
}

// Controller drives expert-side ticket transitions. Resolve is guarded per
// ticket id: while one resolve is outstanding, further calls for the same id
// are rejected outright, never queued.
type Controller struct {
	api    backend
	queue  *notify.Queue
	logger *zap.Logger

	mu        sync.Mutex
	resolving map[int64]bool

	resolveDelay time.Duration

	// OnReplied forces an immediate re-fetch of the ticket detail plus the
	// list and stats. OnResolved runs after resolveDelay so backend-side
	// propagation can settle first. OnUnauthorized routes a 401.
	OnReplied      func(ticketID int64)
	OnResolved     func(ticketID int64)
	OnUnauthorized func()
}

const defaultResolveDelay = 500 * time.Millisecond

func NewController(b backend, queue *notify.Queue, logger *zap.Logger) *Controller {
	return &Controller{
		api:          b,
		queue:        queue,
		logger:       logger,
		resolving:    make(map[int64]bool),
		resolveDelay: defaultResolveDelay,
	}
}

func (c *Controller) Reply(ctx context.Context, ticketID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		c.queue.Push("Veuillez écrire un message", notify.KindWarning)
		return ErrEmptyMessage
	}

	if err := c.api.Reply(ctx, ticketID, text); err != nil {
		c.fail(err, "Erreur envoi message")
		return err
	}

	c.queue.Push("Message envoyé !", notify.KindSuccess)
	if c.OnReplied != nil {
		c.OnReplied(ticketID)
	}
	return nil
}

func (c *Controller) Resolve(ctx context.Context, t api.Ticket) error {
	// Resolved is terminal: never issue a second network call for it.
	if t.Status == api.StatusResolved {
		c.queue.Push("Ce ticket est déjà résolu", notify.KindInfo)
		return ErrAlreadyResolved
	}

	c.mu.Lock()
	if c.resolving[t.ID] {
		c.mu.Unlock()
		return ErrResolvePending
	}
	c.resolving[t.ID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.resolving, t.ID)
		c.mu.Unlock()
	}()

	if err := c.api.Resolve(ctx, t.ID); err != nil {
		c.fail(err, "Erreur résolution ticket")
		return err
	}

	c.queue.Push("Ticket résolu avec succès", notify.KindSuccess)
	if c.OnResolved != nil {
		id := t.ID
		time.AfterFunc(c.resolveDelay, func() { c.OnResolved(id) })
	}
	return nil
}

func (c *Controller) fail(err error, generic string) {
	if errors.Is(err, api.ErrUnauthorized) {
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return
	}

	var reqErr *api.RequestError
	if errors.As(err, &reqErr) && strings.TrimSpace(reqErr.Detail) != "" {
		c.queue.Push(reqErr.Detail, notify.KindError)
	} else {
		c.queue.Push(generic, notify.KindError)
	}
	c.logger.Error("ticket operation failed", zap.Error(err))
}
