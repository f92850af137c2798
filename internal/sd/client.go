// Package sd is the typed client for the ServiceDesk REST API. It carries
// no business logic and no retry loops: each call maps transport and HTTP
// failures onto the package error taxonomy and returns. Retry cadence
// belongs to the workers, whose schedules differ.
package sd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to one ServiceDesk deployment.
type Client struct {
	baseURL   string
	apiPrefix string
	http      *http.Client
}

// New creates a Client for the given base URL and API prefix. Every
// request is bounded by timeout.
func New(baseURL, apiPrefix string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("sd: base URL is required")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("sd: timeout must be positive")
	}
	prefix := strings.TrimSpace(apiPrefix)
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiPrefix: strings.TrimRight(prefix, "/"),
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + c.apiPrefix + path
}

// Authenticate exchanges credentials for a bearer token. A 401/403/400
// response means the credentials themselves were rejected.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	body := map[string]string{"username": username, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/auth/authenticate", "", nil, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("authenticate %s: %w", username, ErrInvalidCredentials)
	default:
		return nil, transientf("authenticate", "unexpected status %d", resp.StatusCode)
	}

	var raw struct {
		ID        int64  `json:"id"`
		UserID    int64  `json:"userId"`
		Username  string `json:"username"`
		Role      string `json:"role"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, transient("authenticate: decode", err)
	}
	if raw.Token == "" {
		return nil, transientf("authenticate", "token missing in response")
	}

	id := raw.UserID
	if id == 0 {
		id = raw.ID
	}
	name := raw.Username
	if name == "" {
		name = username
	}
	return &AuthResult{
		SDUserID:  id,
		Username:  name,
		Role:      raw.Role,
		Token:     raw.Token,
		ExpiresAt: time.UnixMilli(raw.ExpiresAt),
	}, nil
}

// GetTicket fetches one ticket by id.
func (c *Client) GetTicket(ctx context.Context, token string, ticketID int64) (*Ticket, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ticket/%d", ticketID), token, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, fmt.Sprintf("get ticket %d", ticketID)); err != nil {
		return nil, err
	}

	var t Ticket
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, transient(fmt.Sprintf("get ticket %d: decode", ticketID), err)
	}
	return &t, nil
}

// ListPage fetches one page of the ticket list endpoint.
func (c *Client) ListPage(ctx context.Context, token string, page, size int) (*TicketPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	params.Set("type", "VS")
	params.Set("sort", "id")
	params.Set("asc", "false")

	resp, err := c.do(ctx, http.MethodGet, "/ticket", token, params, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, fmt.Sprintf("list page %d", page)); err != nil {
		return nil, err
	}

	var p TicketPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, transient(fmt.Sprintf("list page %d: decode", page), err)
	}
	if p.TotalPages < 1 {
		p.TotalPages = 1
	}
	return &p, nil
}

// ListByExecutor walks the paged list endpoint and returns the tickets
// assigned to the given executor. The remote filter parameters are not
// trusted to narrow by executor, so filtering happens client-side.
func (c *Client) ListByExecutor(ctx context.Context, token string, sdUserID int64, pageSize, maxPages int) ([]Ticket, error) {
	return c.listFiltered(ctx, token, pageSize, maxPages, func(t *Ticket) bool {
		return t.ExecutorID() == sdUserID
	})
}

// ListByLocation walks the paged list endpoint and returns the tickets
// whose address matches region and location exactly. The remote list may
// span a broader scope than the caller's; the filter narrows it here.
func (c *Client) ListByLocation(ctx context.Context, token, region, location string, pageSize, maxPages int) ([]Ticket, error) {
	return c.listFiltered(ctx, token, pageSize, maxPages, func(t *Ticket) bool {
		return t.Region() == region && t.Location() == location
	})
}

func (c *Client) listFiltered(ctx context.Context, token string, pageSize, maxPages int, keep func(*Ticket) bool) ([]Ticket, error) {
	if pageSize <= 0 {
		pageSize = 25
	}
	if maxPages <= 0 {
		maxPages = 5
	}

	var out []Ticket
	totalPages := 1
	for page := 0; page < totalPages && page < maxPages; page++ {
		p, err := c.ListPage(ctx, token, page, pageSize)
		if err != nil {
			return nil, err
		}
		totalPages = p.TotalPages
		for i := range p.Tickets {
			if keep(&p.Tickets[i]) {
				out = append(out, p.Tickets[i])
			}
		}
	}
	return out, nil
}

// SetStatus updates a ticket's status on the remote. The remote expects
// the full ticket document with the new status applied.
func (c *Client) SetStatus(ctx context.Context, token string, ticket *Ticket, newStatus string) (*Ticket, error) {
	if ticket == nil {
		return nil, fmt.Errorf("sd: ticket is required")
	}
	updated := *ticket
	updated.Status = newStatus

	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/ticket/status/%d", ticket.ID), token, nil, &updated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, fmt.Sprintf("set status %d", ticket.ID)); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetUser fetches a user profile, used to enrich dispatcher sessions with
// their region and location.
func (c *Client) GetUser(ctx context.Context, token string, sdUserID int64) (*UserProfile, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", sdUserID), token, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, fmt.Sprintf("get user %d", sdUserID)); err != nil {
		return nil, err
	}

	var u UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, transient(fmt.Sprintf("get user %d: decode", sdUserID), err)
	}
	return &u, nil
}

// do performs one HTTP request. Transport failures come back as
// TransientError; HTTP status mapping is the caller's job (checkStatus).
func (c *Client) do(ctx context.Context, method, path, token string, params url.Values, body interface{}) (*http.Response, error) {
	u := c.url(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, transient(method+" "+path+": encode", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, transient(method+" "+path, err)
	}
	req.Header.Set("Accept", "*/*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transient(method+" "+path, err)
	}
	return resp, nil
}

// checkStatus maps an HTTP response status onto the error taxonomy.
func (c *Client) checkStatus(resp *http.Response, op string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return transientf(op, "unexpected status %d", resp.StatusCode)
	}
}
