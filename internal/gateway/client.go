package gateway

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

	"faultline/internal/domain"
)

// Client is the HTTP implementation of Gateway against the Faultline API.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// NewClient creates a client with sane defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

func (c *Client) FetchReport(ctx context.Context, id string) (domain.FaultReport, error) {
	var out domain.FaultReport
	err := c.do(ctx, http.MethodGet, "reports/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) FetchActor(ctx context.Context) (Actor, error) {
	var out Actor
	err := c.do(ctx, http.MethodGet, "me", nil, &out)
	return out, err
}

func (c *Client) MutateStatus(ctx context.Context, id string, target domain.Status) error {
	body := map[string]any{"target": target}
	endpoint := fmt.Sprintf("reports/%s/status", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &Error{Code: CodeUnavailable, Message: err.Error()}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return &Error{Code: CodeUnavailable, Message: err.Error()}
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
		return &Error{Code: CodeUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return classify(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Code: CodeUnavailable, Message: err.Error()}
		}
	}
	return nil
}

// classify maps an API error response to the gateway taxonomy.
func classify(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	} else if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusForbidden:
		return &Error{Code: CodePermissionDenied, Message: msg}
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return &Error{Code: CodeFailedPrecondition, Message: msg}
	case http.StatusNotFound:
		return &Error{Code: CodeNotFound, Message: msg}
	default:
		return &Error{Code: CodeUnavailable, Message: msg}
	}
}
