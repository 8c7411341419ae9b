package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnauthorized is returned for any 401 response. Callers route it to the
// session manager instead of showing the server's text.
var ErrUnauthorized = errors.New("unauthorized")

// RequestError carries a backend-reported failure ({detail} body). Its Detail
// is safe to show to the user verbatim.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail != "" {
		return detail
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// TokenSource supplies the current bearer token, if any. It is owned by the
// session manager so the client never caches credentials.
type TokenSource func() (string, bool)

type Client struct {
	baseURL string
	httpc   *http.Client
	token   TokenSource
	logger  *zap.Logger
}

const defaultTimeout = 15 * time.Second

func NewClient(baseURL string, timeout time.Duration, token TokenSource, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if token == nil {
		token = func() (string, bool) { return "", false }
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		token:   token,
		logger:  logger,
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Tickets(ctx context.Context) ([]Ticket, error) {
	var out []Ticket
	if err := c.do(ctx, http.MethodGet, "/api/tickets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TicketDetail(ctx context.Context, id int64) (*TicketDetail, error) {
	var out TicketDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reply(ctx context.Context, id int64, message string) error {
	body := map[string]string{"message": message}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/reply", id), body, nil)
}

func (c *Client) Resolve(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/resolve", id), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// AssistantQuery asks the assistant for an answer without creating a ticket.
func (c *Client) AssistantQuery(ctx context.Context, req AssistantRequest) (*AssistantResponse, error) {
	var out AssistantResponse
	if err := c.do(ctx, http.MethodPost, "/api/assistant/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Escalate converts an accumulated exchange into a durable ticket.
func (c *Client) Escalate(ctx context.Context, req AssistantRequest) (*EscalationResponse, error) {
	var out EscalationResponse
	if err := c.do(ctx, http.MethodPost, "/api/webhooks/incoming-sms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserTickets(ctx context.Context, phone string) ([]Ticket, error) {
	var out []Ticket
	path := "/api/user-tickets?phone=" + url.QueryEscape(phone)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EmergencyNumbers(ctx context.Context) ([]EmergencyNumber, error) {
	var out []EmergencyNumber
	if err := c.do(ctx, http.MethodGet, "/api/emergency-numbers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health probes backend liveness. It lives at the server root, outside /api.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := c.token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.requestError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) requestError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil && c.logger != nil {
		c.logger.Debug("non-JSON error body",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(payload)))
	}
	return &RequestError{StatusCode: resp.StatusCode, Detail: body.Detail}
}
