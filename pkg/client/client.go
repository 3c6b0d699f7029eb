// Package client provides a Go client for the support service. REST is
// the source of truth for ticket state; SyncClient layers the realtime
// signal channel on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a decoded error envelope from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Ticket mirrors the ticket summary and detail payloads. Detail-only
// fields stay zero on list responses.
type Ticket struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	UserRole         string     `json:"user_role"`
	CategoryTitle    string     `json:"category_title"`
	SubCategoryTitle string     `json:"sub_category_title"`
	Status           string     `json:"status"`
	AssignedTo       *string    `json:"assigned_to,omitempty"`
	AssignedToName   *string    `json:"assigned_to_name,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Problem          string     `json:"problem,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	Messages         []Message  `json:"messages,omitempty"`
}

// Message is one entry of a ticket thread.
type Message struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	SenderID   string    `json:"sender_id"`
	SenderType string    `json:"sender_type"`
	Message    string    `json:"message"`
	FileURL    *string   `json:"file_url,omitempty"`
	FileName   *string   `json:"file_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateTicketInput is the payload for opening a ticket.
type CreateTicketInput struct {
	CategoryTitle    string `json:"category_title"`
	SubCategoryTitle string `json:"sub_category_title"`
	Problem          string `json:"problem"`
}

// AddMessageInput appends to a ticket thread.
type AddMessageInput struct {
	Message  string  `json:"message"`
	FileURL  *string `json:"file_url,omitempty"`
	FileName *string `json:"file_name,omitempty"`
}

// ListOptions filters ticket listings.
type ListOptions struct {
	Statuses     []string
	AssignedToMe bool
	Page         int
	PageSize     int
}

// Client is a thin REST client. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the given base URL and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateTicket opens a new ticket for the authenticated customer.
func (c *Client) CreateTicket(ctx context.Context, in CreateTicketInput) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTickets returns ticket summaries visible to the caller.
func (c *Client) ListTickets(ctx context.Context, opts ListOptions) ([]Ticket, error) {
	query := url.Values{}
	if len(opts.Statuses) > 0 {
		query.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.AssignedToMe {
		query.Set("assigned_to_me", "true")
	}
	if opts.Page > 0 {
		query.Set("page", fmt.Sprint(opts.Page))
	}
	if opts.PageSize > 0 {
		query.Set("page_size", fmt.Sprint(opts.PageSize))
	}
	var out []Ticket
	if err := c.do(ctx, http.MethodGet, "/tickets", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTicket fetches one ticket with its full ordered thread.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodGet, "/tickets/"+url.PathEscape(ticketID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMessage appends a message to the ticket thread.
func (c *Client) AddMessage(ctx context.Context, ticketID string, in AddMessageInput) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/messages", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimTicket attempts to take assignment of an unassigned ticket. A
// lost race surfaces as an APIError with code ALREADY_ASSIGNED.
func (c *Client) ClaimTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/assign", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveTicket marks an assigned ticket resolved.
func (c *Client) ResolveTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPut, "/tickets/"+url.PathEscape(ticketID)+"/resolve", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseTicket closes a ticket permanently.
func (c *Client) CloseTicket(ctx context.Context, ticketID string) (*Ticket, error) {
	var out Ticket
	if err := c.do(ctx, http.MethodPut, "/tickets/"+url.PathEscape(ticketID)+"/close", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(envelope.Data, out)
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{Status: status, Code: "UNKNOWN", Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{Status: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
}
