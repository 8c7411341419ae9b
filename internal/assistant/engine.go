package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingFirstResponse
	StateConversing
	StateEscalated
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one client-side exchange step. Turns exist only in this process
// until an escalation folds them into a ticket's first message.
type Turn struct {
	Role        Role
	Content     string
	PhotoBase64 string
	Analysis    api.PhotoAnalysis
}

var (
	ErrEmptyText      = errors.New("empty problem text")
	ErrEmptyPhone     = errors.New("empty phone number")
	ErrBusy           = errors.New("request already in flight")
	ErrWrongState     = errors.New("operation not valid in current state")
	ErrNoConversation = errors.New("no conversation to escalate")
)

// Channel identifies this client on the assistant endpoints.
const Channel = "telegram"

type queryAPI interface {
	Health(ctx context.Context) error
	AssistantQuery(ctx context.Context, req api.AssistantRequest) (*api.AssistantResponse, error)
	Escalate(ctx context.Context, req api.AssistantRequest) (*api.EscalationResponse, error)
}

// Engine accumulates one problem-submission session. There is no server-side
// identity for the exchange until Escalate succeeds; until then every turn
// lives here. A busy flag guards each mutating operation against re-entry,
// and a per-session generation tag lets late responses from an abandoned
// session be discarded instead of mutating fresh state.
type Engine struct {
	api    queryAPI
	queue  *notify.Queue
	logger *zap.Logger

	mu         sync.Mutex
	phone      string
	category   api.Category
	state      State
	turns      []Turn
	busy       bool
	escalating bool
	generation uuid.UUID
	ticketID   int64
	lastMedia  []api.Media
	probed     bool
}

func NewEngine(a queryAPI, queue *notify.Queue, logger *zap.Logger) *Engine {
	return &Engine{
		api:        a,
		queue:      queue,
		logger:     logger,
		generation: uuid.New(),
	}
}

func (e *Engine) SetPhone(phone string) {
	e.mu.Lock()
	e.phone = phone
	e.mu.Unlock()
}

func (e *Engine) Phone() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phone
}

// StartProblem begins a fresh session in the given category. Any accumulated
// conversation is discarded and in-flight responses for it become stale.
func (e *Engine) StartProblem(category api.Category) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.category = category
	e.state = StateIdle
	e.turns = nil
	e.ticketID = 0
	e.lastMedia = nil
	e.generation = uuid.New()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Category() api.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.category
}

func (e *Engine) TicketID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticketID
}

func (e *Engine) Turns() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

func (e *Engine) LastMedia() []api.Media {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastMedia
}

// Submit sends the first problem description, optionally with a photo. A
// liveness probe runs before the very first submission of the process.
func (e *Engine) Submit(ctx context.Context, text, photoBase64 string) (*Rendered, error) {
	e.mu.Lock()
	if err := e.validateLocked(text); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil, ErrWrongState
	}
	e.busy = true
	e.state = StateAwaitingFirstResponse
	gen := e.generation
	req := api.AssistantRequest{
		PhoneNumber: e.phone,
		Content:     text,
		Channel:     Channel,
		Category:    e.category,
		PhotoBase64: photoBase64,
	}
	probed := e.probed
	e.mu.Unlock()

	if !probed {
		if err := e.api.Health(ctx); err != nil {
			if e.finish(gen, func() { e.state = StateIdle }) {
				e.queue.Push("Le serveur est indisponible. Veuillez réessayer plus tard.", notify.KindError)
			}
			return nil, err
		}
		e.mu.Lock()
		e.probed = true
		e.mu.Unlock()
	}

	resp, err := e.api.AssistantQuery(ctx, req)
	if err != nil {
		// A failure for an abandoned session must not notify into the
		// session that replaced it.
		if e.finish(gen, func() { e.state = StateIdle }) {
			e.failQuery(err)
		}
		return nil, err
	}

	rendered := Normalize(resp)
	ok := e.finish(gen, func() {
		e.turns = append(e.turns,
			Turn{Role: RoleUser, Content: text, PhotoBase64: photoBase64},
			Turn{Role: RoleAssistant, Content: rendered.Text, Analysis: resp.PhotoAnalysis},
		)
		e.lastMedia = rendered.Media
		e.state = StateConversing
	})
	if !ok {
		return nil, context.Canceled
	}

	e.queue.Push("Demande envoyée avec succès !", notify.KindSuccess)
	return &rendered, nil
}

// Followup asks another question inside an existing exchange.
func (e *Engine) Followup(ctx context.Context, text string) (*Rendered, error) {
	e.mu.Lock()
	if err := e.validateLocked(text); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.state != StateConversing {
		e.mu.Unlock()
		return nil, ErrWrongState
	}
	e.busy = true
	gen := e.generation
	req := api.AssistantRequest{
		PhoneNumber: e.phone,
		Content:     text,
		Channel:     Channel,
		Category:    e.category,
	}
	e.mu.Unlock()

	resp, err := e.api.AssistantQuery(ctx, req)
	if err != nil {
		if e.finish(gen, nil) {
			e.failQuery(err)
		}
		return nil, err
	}

	rendered := Normalize(resp)
	ok := e.finish(gen, func() {
		e.turns = append(e.turns,
			Turn{Role: RoleUser, Content: text},
			Turn{Role: RoleAssistant, Content: rendered.Text, Analysis: resp.PhotoAnalysis},
		)
		e.lastMedia = rendered.Media
	})
	if !ok {
		return nil, context.Canceled
	}
	return &rendered, nil
}

// Escalate folds every user turn into one summary message and asks the
// backend to create a ticket for it. A second call while one is outstanding
// is rejected, not queued. On failure the conversation stays usable.
func (e *Engine) Escalate(ctx context.Context) (int64, error) {
	e.mu.Lock()
	if e.state != StateConversing {
		e.mu.Unlock()
		return 0, ErrWrongState
	}
	if e.escalating {
		e.mu.Unlock()
		return 0, ErrBusy
	}
	if strings.TrimSpace(e.phone) == "" {
		e.mu.Unlock()
		e.queue.Push("Veuillez vérifier votre numéro de téléphone.", notify.KindWarning)
		return 0, ErrEmptyPhone
	}

	summary, photo := summarizeLocked(e.turns)
	if summary == "" {
		e.mu.Unlock()
		e.queue.Push("Veuillez poser votre question avant de contacter un expert.", notify.KindWarning)
		return 0, ErrNoConversation
	}

	e.escalating = true
	gen := e.generation
	req := api.AssistantRequest{
		PhoneNumber: e.phone,
		Content:     summary,
		Channel:     Channel,
		Category:    e.category,
		PhotoBase64: photo,
	}
	e.mu.Unlock()

	resp, err := e.api.Escalate(ctx, req)

	e.mu.Lock()
	e.escalating = false
	if gen != e.generation {
		e.mu.Unlock()
		return 0, context.Canceled
	}
	if err != nil {
		e.mu.Unlock()
		e.failEscalation(err)
		return 0, err
	}
	e.state = StateEscalated
	e.ticketID = resp.TicketID
	e.mu.Unlock()

	e.queue.Push("Votre demande a été envoyée à un expert.", notify.KindSuccess)
	return resp.TicketID, nil
}

func (e *Engine) validateLocked(text string) error {
	if e.busy {
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		e.queue.Push("Veuillez décrire votre problème", notify.KindWarning)
		return ErrEmptyText
	}
	if strings.TrimSpace(e.phone) == "" {
		e.queue.Push("Veuillez vérifier votre numéro de téléphone.", notify.KindWarning)
		return ErrEmptyPhone
	}
	return nil
}

// finish clears the busy flag and, when the session generation still matches,
// applies the state mutation. A mismatch means the session was reset while
// the request was in flight: the response is discarded.
func (e *Engine) finish(gen uuid.UUID, apply func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.busy = false
	if gen != e.generation {
		return false
	}
	if apply != nil {
		apply()
	}
	return true
}

func (e *Engine) failQuery(err error) {
	var reqErr *api.RequestError
	if errors.As(err, &reqErr) && strings.TrimSpace(reqErr.Detail) != "" {
		e.queue.Push(reqErr.Detail, notify.KindError)
	} else {
		e.queue.Push("Erreur lors de l'envoi. Vérifiez votre connexion.", notify.KindError)
	}
	e.logger.Warn("assistant query failed", zap.Error(err))
}

func (e *Engine) failEscalation(err error) {
	var reqErr *api.RequestError
	if errors.As(err, &reqErr) && strings.TrimSpace(reqErr.Detail) != "" {
		e.queue.Push(reqErr.Detail, notify.KindError)
	} else {
		e.queue.Push("Erreur lors de l'envoi au niveau expert.", notify.KindError)
	}
	e.logger.Warn("escalation failed", zap.Error(err))
}

// summarizeLocked concatenates every user turn as a numbered question list
// and returns the most recent photo, if any.
func summarizeLocked(turns []Turn) (string, string) {
	var questions []string
	photo := ""
	k := 0
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		k++
		questions = append(questions, fmt.Sprintf("Question %d : %s", k, t.Content))
		if t.PhotoBase64 != "" {
			photo = t.PhotoBase64
		}
	}
	return strings.Join(questions, "\n\n"), photo
}
