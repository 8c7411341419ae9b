package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/api"
	"github.com/resolvehub/songra/internal/assistant"
	"github.com/resolvehub/songra/internal/notify"
	"github.com/resolvehub/songra/internal/session"
)

// maxPhotoBytes caps photo uploads before base64 encoding; the backend
// rejects larger payloads anyway.
const maxPhotoBytes = 5 * 1024 * 1024

type stage int

const (
	stageAskPhone stage = iota
	stageAskCategory
	stageAskProblem
	stageConversing
)

// chatState is the per-chat conversation context. Each chat gets its own
// engine and notification queue; queue entries are relayed as bot messages.
// Updates for one chat are handled on separate goroutines, so the stage is
// mutex-guarded like the engine's own state.
type chatState struct {
	engine *assistant.Engine
	queue  *notify.Queue

	mu    sync.Mutex
	stage stage
}

func (cs *chatState) currentStage() stage {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.stage
}

func (cs *chatState) setStage(s stage) {
	cs.mu.Lock()
	cs.stage = s
	cs.mu.Unlock()
}

type Bot struct {
	tg       *tgbotapi.BotAPI
	backend  *api.Client
	store    session.Storage
	logger   *zap.Logger
	notifTTL time.Duration

	mu    sync.Mutex
	chats map[int64]*chatState
}

func New(token string, backend *api.Client, store session.Storage, notifTTL time.Duration, logger *zap.Logger) (*Bot, error) {
	tg, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		tg:       tg,
		backend:  backend,
		store:    store,
		logger:   logger,
		notifTTL: notifTTL,
		chats:    make(map[int64]*chatState),
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) chat(chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cs, ok := b.chats[chatID]; ok {
		return cs
	}

	queue := notify.NewQueue(b.notifTTL)
	queue.SetListener(func(n notify.Notification) {
		b.sendNotification(chatID, n)
	})

	cs := &chatState{
		engine: assistant.NewEngine(b.backend, queue, b.logger),
		queue:  queue,
		stage:  stageAskPhone,
	}

	// Returning users are pre-filled with their persisted phone number.
	if phone, err := b.store.LoadPhone(chatID); err == nil && phone != "" {
		cs.engine.SetPhone(phone)
		cs.stage = stageAskCategory
	}

	b.chats[chatID] = cs
	return cs
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()
	cs := b.chat(message.Chat.ID)

	if message.IsCommand() {
		b.handleCommand(ctx, cs, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	photo := ""
	if len(message.Photo) > 0 {
		encoded, err := b.downloadPhoto(message.Photo)
		if err != nil {
			b.logger.Error("Failed to download photo",
				zap.Error(err),
				zap.Int64("chat_id", message.Chat.ID))
			b.sendMessage(message.Chat.ID, "⚠️ Impossible de récupérer la photo, elle sera ignorée.")
		} else {
			photo = encoded
		}
	}

	switch cs.currentStage() {
	case stageAskPhone:
		b.handlePhone(cs, message.Chat.ID, content)
	case stageAskCategory:
		b.handleCategoryChoice(cs, message.Chat.ID, content)
	case stageAskProblem:
		b.handleFirstProblem(ctx, cs, message.Chat.ID, content, photo)
	case stageConversing:
		b.handleFollowup(ctx, cs, message.Chat.ID, content)
	}
}

func (b *Bot) handleCommand(ctx context.Context, cs *chatState, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(cs, message)
	case "aide":
		b.handleHelp(message)
	case "nouvelle":
		b.promptCategory(cs, message.Chat.ID)
	case "expert":
		b.handleEscalate(ctx, cs, message.Chat.ID)
	case "historique":
		b.handleHistory(ctx, cs, message.Chat.ID)
	case "ticket":
		b.handleTicketDetail(ctx, cs, message.Chat.ID, message.CommandArguments())
	case "numeros":
		b.handleEmergencyNumbers(ctx, message.Chat.ID)
	case "telephone":
		cs.setStage(stageAskPhone)
		b.sendMessage(message.Chat.ID, "Quel est votre numéro de téléphone ? (exemple : +226 70 00 00 00)")
	default:
		b.sendMessage(message.Chat.ID, "Commande inconnue. Utilisez /aide pour voir les commandes disponibles.")
	}
}

func (b *Bot) handleStart(cs *chatState, message *tgbotapi.Message) {
	welcome := `Bienvenue sur SONGRA ! 🌾
Votre assistant expert 24/7 : agriculture, élevage, premiers secours et cybersécurité.

Décrivez votre problème (avec une photo si utile), discutez avec l'assistant IA, puis demandez l'avis d'un expert humain avec /expert.

Utilisez /aide pour voir toutes les commandes.`

	b.sendMessage(message.Chat.ID, welcome)

	if cs.engine.Phone() == "" {
		cs.setStage(stageAskPhone)
		b.sendMessage(message.Chat.ID, "Pour commencer, quel est votre numéro de téléphone ?")
	} else {
		b.promptCategory(cs, message.Chat.ID)
	}
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Commandes disponibles :
/start - Démarrer l'assistant
/aide - Afficher cette aide
/nouvelle - Nouvelle demande (changer de domaine)
/expert - Envoyer la conversation à un expert humain
/historique - Voir vos demandes passées
/ticket <numéro> - Suivre une demande précise
/numeros - Numéros utiles en cas d'urgence
/telephone - Changer votre numéro de téléphone

Vous pouvez envoyer :
- Une description de votre problème
- Une photo avec légende (elle sera analysée par l'IA)
- Des questions de suivi après la première réponse`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handlePhone(cs *chatState, chatID int64, content string) {
	phone := strings.TrimSpace(content)
	if phone == "" {
		b.sendMessage(chatID, "Veuillez entrer votre numéro de téléphone.")
		return
	}

	cs.engine.SetPhone(phone)
	if err := b.store.SavePhone(chatID, phone); err != nil {
		b.logger.Warn("failed to persist phone", zap.Error(err), zap.Int64("chat_id", chatID))
	}

	b.promptCategory(cs, chatID)
}

func (b *Bot) promptCategory(cs *chatState, chatID int64) {
	cs.setStage(stageAskCategory)

	var rows [][]tgbotapi.KeyboardButton
	for _, c := range categoryCatalogue {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(c.Name)))
	}

	msg := tgbotapi.NewMessage(chatID, "Dans quel domaine avez-vous besoin d'aide ?")
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	msg.ReplyMarkup = keyboard
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error("Failed to send category prompt",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) handleCategoryChoice(cs *chatState, chatID int64, content string) {
	c, ok := categoryByName(strings.TrimSpace(content))
	if !ok {
		b.promptCategory(cs, chatID)
		return
	}

	cs.engine.StartProblem(c.ID)
	cs.setStage(stageAskProblem)

	text := fmt.Sprintf("%s — %s\n\nDécrivez votre problème. Soyez le plus précis possible pour une meilleure réponse.\nExemples : %s",
		c.Name, c.Description, strings.Join(c.Examples, ", "))
	b.sendMessage(chatID, text)
}

func (b *Bot) handleFirstProblem(ctx context.Context, cs *chatState, chatID int64, content, photo string) {
	rendered, err := cs.engine.Submit(ctx, content, photo)
	if err != nil {
		// Validation and transport failures are already reported through the
		// chat's notification queue.
		return
	}

	cs.setStage(stageConversing)
	b.sendRendered(chatID, rendered)
	b.sendMessage(chatID, "Vous pouvez poser une autre question, ou utiliser /expert pour qu'un expert humain vérifie votre situation.")
}

func (b *Bot) handleFollowup(ctx context.Context, cs *chatState, chatID int64, content string) {
	rendered, err := cs.engine.Followup(ctx, content)
	if err != nil {
		return
	}
	b.sendRendered(chatID, rendered)
}

func (b *Bot) handleEscalate(ctx context.Context, cs *chatState, chatID int64) {
	ticketID, err := cs.engine.Escalate(ctx)
	if err != nil {
		if err == assistant.ErrWrongState {
			b.sendMessage(chatID, "Posez d'abord votre question à l'assistant IA, puis utilisez /expert.")
		}
		return
	}

	text := fmt.Sprintf(`Un expert humain va vérifier cette réponse et peut vous contacter pour plus de détails.

Numéro de ticket : #%d
Conservez ce numéro pour suivre votre demande (/historique).`, ticketID)
	b.sendMessage(chatID, text)
}

func (b *Bot) handleHistory(ctx context.Context, cs *chatState, chatID int64) {
	phone := cs.engine.Phone()
	if phone == "" {
		cs.setStage(stageAskPhone)
		b.sendMessage(chatID, "Quel est votre numéro de téléphone ?")
		return
	}

	tickets, err := b.backend.UserTickets(ctx, phone)
	if err != nil {
		b.logger.Error("Failed to load user tickets",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		b.sendMessage(chatID, "⚠️ Impossible de charger l'historique. Réessayez plus tard.")
		return
	}

	if len(tickets) == 0 {
		b.sendMessage(chatID, "Aucune demande pour le moment. Utilisez /nouvelle pour en créer une.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Vos demandes :\n\n")
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("Ticket #%d — %s (%s, %s)\n",
			t.ID, statusLabel(t.Status), categoryLabel(t.Category), urgencyLabel(t.Urgency)))
		if t.LastMessage != "" {
			sb.WriteString(truncate(t.LastMessage, 120))
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("Créé le %s\n\n", t.CreatedAt.Format("02/01/2006 15:04")))
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleTicketDetail(ctx context.Context, cs *chatState, chatID int64, arg string) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
	if err != nil || id <= 0 {
		b.sendMessage(chatID, "Usage : /ticket <numéro> (voir /historique pour vos numéros)")
		return
	}

	detail, err := b.backend.TicketDetail(ctx, id)
	if err != nil {
		b.sendTicketFallback(ctx, cs, chatID, id)
		return
	}

	t := detail.Ticket
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Ticket #%d — %s (%s, %s)\n", t.ID, statusLabel(t.Status), categoryLabel(t.Category), urgencyLabel(t.Urgency)))
	sb.WriteString(fmt.Sprintf("Créé le %s\n\n", t.CreatedAt.Format("02/01/2006 15:04")))

	if len(detail.Messages) == 0 {
		sb.WriteString("Un expert n'a pas encore répondu. Vous serez notifié dès qu'une réponse arrive.")
	} else {
		for _, m := range detail.Messages {
			label := "Vous"
			if m.SenderType == api.SenderExpert {
				label = "Expert"
			} else if m.SenderType == api.SenderSystem {
				label = "Assistant"
			}
			sb.WriteString(fmt.Sprintf("%s (%s) :\n%s\n\n", label, m.SentAt.Format("02/01 15:04"), m.Content))
		}
	}
	b.sendMessage(chatID, sb.String())
}

// sendTicketFallback synthesizes a summary from the history snapshot when the
// detail endpoint is unavailable, so the user still sees the ticket status.
func (b *Bot) sendTicketFallback(ctx context.Context, cs *chatState, chatID int64, id int64) {
	phone := cs.engine.Phone()
	if phone != "" {
		if tickets, err := b.backend.UserTickets(ctx, phone); err == nil {
			for _, t := range tickets {
				if t.ID != id {
					continue
				}
				text := fmt.Sprintf("Ticket #%d — %s (%s, %s)\nDernier message : %s",
					t.ID, statusLabel(t.Status), categoryLabel(t.Category), urgencyLabel(t.Urgency),
					truncate(t.LastMessage, 200))
				b.sendMessage(chatID, text)
				return
			}
		}
	}
	b.sendMessage(chatID, fmt.Sprintf("⚠️ Impossible de charger le détail du ticket #%d pour le moment. Réessayez plus tard.", id))
}

func (b *Bot) handleEmergencyNumbers(ctx context.Context, chatID int64) {
	numbers, err := b.backend.EmergencyNumbers(ctx)
	if err != nil {
		b.logger.Error("Failed to load emergency numbers", zap.Error(err))
		b.sendMessage(chatID, "⚠️ Impossible de charger les numéros utiles. Réessayez plus tard.")
		return
	}

	if len(numbers) == 0 {
		b.sendMessage(chatID, "Aucun numéro d'urgence n'est encore configuré.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📞 Numéros utiles (urgence) :\n\n")
	for _, n := range numbers {
		sb.WriteString(fmt.Sprintf("%s : %s\n", n.Label, n.Number))
		if n.Description != "" {
			sb.WriteString(n.Description + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("En cas de doute grave (perte de connaissance, détresse respiratoire, gros saignement), appelez directement un service d'urgence avant d'utiliser l'assistant IA.")
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) sendRendered(chatID int64, r *assistant.Rendered) {
	b.sendMessage(chatID, r.Text)

	for _, m := range r.Media {
		if m.URL == "" {
			continue
		}
		switch m.Type {
		case "image":
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(m.URL))
			photo.Caption = m.Title
			if _, err := b.tg.Send(photo); err != nil {
				b.logger.Warn("Failed to send illustration",
					zap.Error(err),
					zap.String("url", m.URL))
			}
		case "video":
			title := m.Title
			if title == "" {
				title = "Vidéo explicative"
			}
			b.sendMessage(chatID, fmt.Sprintf("🎬 %s\n%s", title, m.URL))
		}
	}
}

// downloadPhoto fetches the largest size of a Telegram photo and encodes it
// as the data-URL base64 the backend expects.
func (b *Bot) downloadPhoto(sizes []tgbotapi.PhotoSize) (string, error) {
	best := sizes[len(sizes)-1]
	if best.FileSize > maxPhotoBytes {
		return "", fmt.Errorf("photo too large: %d bytes", best.FileSize)
	}

	url, err := b.tg.GetFileDirectURL(best.FileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file url: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return "", fmt.Errorf("photo too large: %d bytes", len(data))
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (b *Bot) sendNotification(chatID int64, n notify.Notification) {
	prefix := map[notify.Kind]string{
		notify.KindSuccess: "✅ ",
		notify.KindError:   "⚠️ ",
		notify.KindWarning: "⚠️ ",
		notify.KindInfo:    "ℹ️ ",
	}[n.Kind]
	b.sendMessage(chatID, prefix+n.Message)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
