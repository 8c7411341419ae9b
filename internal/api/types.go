package api

import (
	"encoding/json"
	"time"
)

type TicketStatus string

const (
	StatusOpen     TicketStatus = "open"
	StatusAssigned TicketStatus = "assigned"
	StatusResolved TicketStatus = "resolved"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

type Category string

const (
	CategoryAgriculture   Category = "agriculture"
	CategoryElevage       Category = "elevage"
	CategorySOSAccident   Category = "sos_accident"
	CategoryCybersecurity Category = "cybersecurity"
)

// Some backend rows carry the legacy "health" value where newer ones use
// "sos_accident". The legacy value is folded into the canonical one here so
// nothing downstream has to know about it.
func NormalizeCategory(raw string) Category {
	if raw == "health" {
		return CategorySOSAccident
	}
	return Category(raw)
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NormalizeCategory(raw)
	return nil
}

func Categories() []Category {
	return []Category{CategoryAgriculture, CategoryElevage, CategorySOSAccident, CategoryCybersecurity}
}

type Ticket struct {
	ID            int64         `json:"id"`
	Status        TicketStatus  `json:"status"`
	Category      Category      `json:"category"`
	Urgency       Urgency       `json:"urgency"`
	LastMessage   string        `json:"last_message"`
	UserPhone     string        `json:"user_phone"`
	PhotoURL      string        `json:"photo_url,omitempty"`
	PhotoAnalysis PhotoAnalysis `json:"photo_analysis,omitempty"`
	HasPhoto      bool          `json:"has_photo,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderExpert SenderType = "expert"
	SenderSystem SenderType = "system"
)

type Message struct {
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	SentAt     time.Time  `json:"sent_at"`
}

type TicketUser struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

type TicketDetail struct {
	Ticket   Ticket     `json:"ticket"`
	User     TicketUser `json:"user"`
	Messages []Message  `json:"messages"`
}

// Stats mirrors GET /stats; absent fields decode to zero which matches the
// contract's defaulting rule.
type Stats struct {
	TotalTickets      int `json:"total_tickets"`
	OpenTickets       int `json:"open_tickets"`
	AssignedTickets   int `json:"assigned_tickets"`
	ResolvedToday     int `json:"resolved_today"`
	TicketsWithPhotos int `json:"tickets_with_photos"`
}

type Expert struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type LoginResult struct {
	Token  string `json:"token"`
	Expert Expert `json:"expert"`
}

type Media struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type RAGItem struct {
	Title  string  `json:"title"`
	Answer string  `json:"answer"`
	Source string  `json:"source"`
	Media  []Media `json:"media,omitempty"`
}

type AssistantRequest struct {
	PhoneNumber string   `json:"phone_number"`
	Content     string   `json:"content"`
	Channel     string   `json:"channel"`
	Category    Category `json:"category"`
	PhotoBase64 string   `json:"photo_base64,omitempty"`
}

type AssistantResponse struct {
	LLMAnswer         string        `json:"llm_answer,omitempty"`
	RAGItems          []RAGItem     `json:"rag_items,omitempty"`
	RAGFallbackAnswer string        `json:"rag_fallback_answer,omitempty"`
	PhotoAnalysis     PhotoAnalysis `json:"photo_analysis,omitempty"`
}

type EscalationResponse struct {
	TicketID int64 `json:"ticket_id"`
	AssistantResponse
}

type EmergencyNumber struct {
	ID          int64  `json:"id"`
	Label       string `json:"label"`
	Number      string `json:"number"`
	Description string `json:"description,omitempty"`
}
