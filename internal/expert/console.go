package expert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/notify"
	"github.com/resolvehub/songra/internal/schedule"
	"github.com/resolvehub/songra/internal/session"
	"github.com/resolvehub/songra/internal/tickets"
)

type view int

const (
	viewLogin view = iota
	viewDashboard
	viewDetail
)

// Console is the expert-side terminal frontend: login, ticket dashboard with
// filters and auto-refresh, ticket detail with reply/resolve.
type Console struct {
	backend *api.Client
	sess    *session.Manager
	store   *tickets.Store
	sched   *schedule.Scheduler
	queue   *notify.Queue
	ctrl    *tickets.Controller
	logger  *zap.Logger

	in  io.Reader
	out io.Writer

	refreshPeriod time.Duration

	mu       sync.Mutex
	view     view
	detailID int64
	filter   tickets.Filter
	detail   *api.TicketDetail
}

func NewConsole(
	backend *api.Client,
	sess *session.Manager,
	store *tickets.Store,
	sched *schedule.Scheduler,
	queue *notify.Queue,
	ctrl *tickets.Controller,
	refreshPeriod time.Duration,
	in io.Reader,
	out io.Writer,
	logger *zap.Logger,
) *Console {
	c := &Console{
		backend:       backend,
		sess:          sess,
		store:         store,
		sched:         sched,
		queue:         queue,
		ctrl:          ctrl,
		logger:        logger,
		in:            in,
		out:           out,
		refreshPeriod: refreshPeriod,
		view:          viewLogin,
		filter:        tickets.NewFilter(),
	}

	queue.SetListener(func(n notify.Notification) {
		fmt.Fprintf(out, "[%s] %s\n", n.Kind, n.Message)
	})

	// Session teardown: stop polling, drop tickets, back to the login view.
	sess.OnReset(func() {
		sched.Stop()
		store.Clear()
		c.mu.Lock()
		c.view = viewLogin
		c.detail = nil
		c.detailID = 0
		c.mu.Unlock()
	})

	ctrl.OnReplied = func(id int64) {
		c.loadDetail(id)
		c.loadTickets()
		c.loadStats()
	}
	ctrl.OnResolved = func(id int64) {
		c.mu.Lock()
		current := c.view == viewDetail && c.detailID == id
		c.mu.Unlock()
		if current {
			c.loadDetail(id)
		}
		c.loadTickets()
		c.loadStats()
	}
	ctrl.OnUnauthorized = sess.OnUnauthorized

	return c
}

// Run drives the interactive loop until EOF or the quit command.
func (c *Console) Run(ctx context.Context) error {
	if c.sess.Restore() {
		c.enterDashboard()
	} else {
		fmt.Fprintln(c.out, "Connectez-vous avec : login <email> <mot de passe>")
	}

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			c.sched.Stop()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !c.dispatch(ctx, line) {
			c.sched.Stop()
			return nil
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "login":
		c.cmdLogin(ctx, args)
	case "logout":
		c.sess.Logout()
	case "list":
		c.cmdList()
	case "filter":
		c.cmdFilter(args)
	case "stats":
		c.cmdStats()
	case "open":
		c.cmdOpen(args)
	case "back":
		c.mu.Lock()
		c.view = viewDashboard
		c.detailID = 0
		c.detail = nil
		c.mu.Unlock()
		c.cmdList()
	case "reply":
		c.cmdReply(ctx, args)
	case "resolve":
		c.cmdResolve(ctx, args)
	case "refresh":
		c.refreshTick()
	case "help":
		c.printHelp()
	default:
		fmt.Fprintln(c.out, "Commande inconnue, tapez help.")
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `Commandes :
  login <email> <mot de passe>   se connecter
  list                           afficher les tickets filtrés
  filter status=open urgency=high q=texte   (all pour désactiver)
  stats                          afficher les statistiques
  open <id>                      ouvrir le détail d'un ticket
  reply <id> <message>           répondre au ticket
  resolve <id>                   marquer comme résolu
  refresh                        forcer un rafraîchissement
  back                           revenir au tableau de bord
  logout / quit`)
}

func (c *Console) cmdLogin(ctx context.Context, args []string) {
	email, password := "", ""
	if len(args) > 0 {
		email = args[0]
	}
	if len(args) > 1 {
		password = args[1]
	}

	if _, err := c.sess.Login(ctx, email, password); err != nil {
		return
	}
	c.enterDashboard()
}

func (c *Console) enterDashboard() {
	c.mu.Lock()
	c.view = viewDashboard
	c.mu.Unlock()

	c.sched.Start(c.refreshPeriod, c.refreshTick)
	c.loadTickets()
	c.loadStats()
	c.cmdList()
}

// refreshTick dispatches the fetch appropriate to the view at fire time, so a
// stale schedule never triggers a wrong-view fetch.
func (c *Console) refreshTick() {
	c.mu.Lock()
	v, id := c.view, c.detailID
	c.mu.Unlock()

	switch v {
	case viewDashboard:
		c.loadTickets()
		c.loadStats()
	case viewDetail:
		c.loadDetail(id)
	}
}

func (c *Console) loadTickets() {
	ts, err := c.backend.Tickets(context.Background())
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.sess.OnUnauthorized()
			return
		}
		c.logger.Warn("failed to load tickets", zap.Error(err))
		c.queue.Push("Impossible de se connecter au serveur", notify.KindError)
		return
	}
	c.store.ReplaceAll(ts)
}

func (c *Console) loadStats() {
	st, err := c.backend.Stats(context.Background())
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.sess.OnUnauthorized()
			return
		}
		c.logger.Warn("failed to load stats", zap.Error(err))
		return
	}
	c.store.SetStats(st)
}

func (c *Console) loadDetail(id int64) {
	detail, err := c.backend.TicketDetail(context.Background(), id)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.sess.OnUnauthorized()
			return
		}
		c.queue.Push("Erreur chargement détail du ticket", notify.KindError)
		return
	}

	c.mu.Lock()
	// A detail that arrives after the user navigated elsewhere is dropped.
	if c.view == viewDetail && c.detailID == id {
		c.detail = detail
	}
	c.mu.Unlock()
}

func (c *Console) cmdList() {
	c.mu.Lock()
	f := c.filter
	c.mu.Unlock()

	ts := c.store.Filtered(f)
	if len(ts) == 0 {
		fmt.Fprintln(c.out, "Aucun ticket ne correspond aux filtres.")
		return
	}

	for _, t := range ts {
		photo := " "
		if t.PhotoURL != "" || t.HasPhoto {
			photo = "📷"
		}
		fmt.Fprintf(c.out, "#%-5d %-10s %-13s %-7s %s %s — %s\n",
			t.ID, t.Status, t.Category, t.Urgency, photo,
			t.CreatedAt.Format("02/01 15:04"), firstLine(t.LastMessage))
	}
}

func (c *Console) cmdFilter(args []string) {
	c.mu.Lock()
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			continue
		}
		switch key {
		case "status":
			c.filter.Status = value
		case "category":
			c.filter.Category = value
		case "urgency":
			c.filter.Urgency = value
		case "q":
			c.filter.Query = value
		}
	}
	c.mu.Unlock()
	c.cmdList()
}

func (c *Console) cmdStats() {
	st := c.store.Stats()
	fmt.Fprintf(c.out, "Tickets: %d total, %d en attente, %d en traitement, %d résolus aujourd'hui, %d avec photo\n",
		st.TotalTickets, st.OpenTickets, st.AssignedTickets, st.ResolvedToday, st.TicketsWithPhotos)
}

func (c *Console) cmdOpen(args []string) {
	id, ok := parseID(args)
	if !ok {
		fmt.Fprintln(c.out, "Usage : open <id>")
		return
	}

	c.mu.Lock()
	c.view = viewDetail
	c.detailID = id
	c.detail = nil
	c.mu.Unlock()

	c.loadDetail(id)
	c.printDetail()
}

func (c *Console) printDetail() {
	c.mu.Lock()
	detail := c.detail
	c.mu.Unlock()

	if detail == nil {
		fmt.Fprintln(c.out, "Détail indisponible.")
		return
	}

	t := detail.Ticket
	fmt.Fprintf(c.out, "Ticket #%d — %s / %s / %s\n", t.ID, t.Status, t.Category, t.Urgency)
	fmt.Fprintf(c.out, "Téléphone : %s\n", detail.User.Phone)
	fmt.Fprintf(c.out, "Créé le %s\n\n", t.CreatedAt.Format("02/01/2006 15:04"))
	fmt.Fprintln(c.out, t.LastMessage)

	if t.PhotoURL != "" {
		fmt.Fprintf(c.out, "\nPhoto : %s\n", t.PhotoURL)
	}
	if t.PhotoAnalysis.Present() {
		rec := t.PhotoAnalysis.Record
		fmt.Fprintf(c.out, "Analyse IA : %s", orDefault(rec.DiseaseDetected, "non identifiée"))
		if rec.Confidence != nil {
			fmt.Fprintf(c.out, " (confiance %.0f%%)", *rec.Confidence*100)
		}
		fmt.Fprintln(c.out)
	}

	if len(detail.Messages) > 0 {
		fmt.Fprintln(c.out, "\nMessages :")
		for _, m := range detail.Messages {
			fmt.Fprintf(c.out, "  [%s] %s — %s\n", m.SenderType, m.SentAt.Format("02/01 15:04"), m.Content)
		}
	}
}

func (c *Console) cmdReply(ctx context.Context, args []string) {
	id, ok := parseID(args)
	if !ok || len(args) < 2 {
		fmt.Fprintln(c.out, "Usage : reply <id> <message>")
		return
	}
	text := strings.Join(args[1:], " ")
	_ = c.ctrl.Reply(ctx, id, text)
}

func (c *Console) cmdResolve(ctx context.Context, args []string) {
	id, ok := parseID(args)
	if !ok {
		fmt.Fprintln(c.out, "Usage : resolve <id>")
		return
	}

	t, found := c.store.Get(id)
	if !found {
		// Not in the snapshot; let the backend decide, status unknown.
		t = api.Ticket{ID: id}
	}
	_ = c.ctrl.Resolve(ctx, t)
}

func parseID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > 60 {
		return string(runes[:60]) + "…"
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
