package faultlinesdk

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

// Client is a minimal Faultline HTTP API client.
type Client struct {
	BaseURL     string
	SiteID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, siteID string) *Client {
	return &Client{
		BaseURL: baseURL,
		SiteID:  siteID,
		Timeout: 10 * time.Second,
	}
}

// Report represents the API fault report model.
type Report struct {
	ID          string   `json:"id"`
	SiteID      string   `json:"site_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Status      string   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Action is one candidate transition the calling actor may take.
type Action struct {
	Target       string `json:"target"`
	Label        string `json:"label"`
	Mode         string `json:"mode"`
	Destructive  bool   `json:"destructive,omitempty"`
	ConfirmTitle string `json:"confirm_title,omitempty"`
	ConfirmBody  string `json:"confirm_body,omitempty"`
}

// Comment represents a report comment.
type Comment struct {
	ID        string `json:"id"`
	ReportID  string `json:"report_id"`
	Body      string `json:"body"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SiteID     string         `json:"site_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Identity is the calling actor as the API resolves it.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedReports wraps report listings.
type PaginatedReports struct {
	Items      []Report `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateReport files a new fault report.
func (c *Client) CreateReport(ctx context.Context, title, description, location, urgency string) (Report, error) {
	body := map[string]any{
		"title": title,
	}
	if description != "" {
		body["description"] = description
	}
	if location != "" {
		body["location"] = location
	}
	if urgency != "" {
		body["urgency"] = urgency
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, c.sitePath("reports"), body, &resp)
	return resp, err
}

// ListReports returns reports for the site, optionally filtered by status.
func (c *Client) ListReports(ctx context.Context, status string) ([]Report, error) {
	endpoint := c.sitePath("reports")
	if status != "" {
		endpoint = fmt.Sprintf("%s?status=%s", endpoint, url.QueryEscape(status))
	}
	var resp PaginatedReports
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetReport fetches a report by id.
func (c *Client) GetReport(ctx context.Context, id string) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "v1/reports/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Actions returns the candidate transitions for the calling actor.
func (c *Client) Actions(ctx context.Context, reportID string) ([]Action, error) {
	var resp []Action
	endpoint := fmt.Sprintf("v1/reports/%s/actions", url.PathEscape(reportID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetStatus moves a report to the target status.
func (c *Client) SetStatus(ctx context.Context, reportID, target string) (Report, error) {
	var resp Report
	endpoint := fmt.Sprintf("v1/reports/%s/status", url.PathEscape(reportID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"target": target}, &resp)
	return resp, err
}

// AddComment appends a comment to a report.
func (c *Client) AddComment(ctx context.Context, reportID, body string) (Comment, error) {
	var resp Comment
	endpoint := fmt.Sprintf("v1/reports/%s/comments", url.PathEscape(reportID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body}, &resp)
	return resp, err
}

// ListComments returns comments on a report.
func (c *Client) ListComments(ctx context.Context, reportID string) ([]Comment, error) {
	var resp []Comment
	endpoint := fmt.Sprintf("v1/reports/%s/comments", url.PathEscape(reportID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WhoAmI resolves the calling identity.
func (c *Client) WhoAmI(ctx context.Context) (Identity, error) {
	var resp Identity
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.sitePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) sitePath(p string) string {
	site := url.PathEscape(c.SiteID)
	return fmt.Sprintf("v1/sites/%s/%s", site, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
