package server

import (
	"encoding/json"

	"faultline/internal/config"
	"faultline/internal/domain"
	"faultline/internal/workflow"
)

// Request payloads

type CreateReportRequest struct {
	ID          *string  `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Urgency     *string  `json:"urgency,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type SetStatusRequest struct {
	Target string `json:"target" enum:"created,open,in_progress,waiting,incomplete,completed,resolved,closed,cancelled,not_possible"`
}

type CreateCommentRequest struct {
	Body string `json:"body"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"resident,service_company,maintenance,housing_company,admin"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

// Response payloads

type ReportResponse struct {
	ID          string   `json:"id"`
	SiteID      string   `json:"site_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Status      string   `json:"status" enum:"created,open,in_progress,waiting,incomplete,completed,resolved,closed,cancelled,not_possible"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type ActionResponse struct {
	Target       string `json:"target"`
	Label        string `json:"label"`
	Mode         string `json:"mode" enum:"primary,secondary"`
	Destructive  bool   `json:"destructive,omitempty"`
	ConfirmTitle string `json:"confirm_title,omitempty"`
	ConfirmBody  string `json:"confirm_body,omitempty"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	ReportID  string `json:"report_id"`
	Body      string `json:"body"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type SiteResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type WhoAmIResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreateAPIKeyResponse struct {
	Key APIKeyResponse `json:"key"`
	// Plaintext is shown once at creation; only the hash is stored.
	Plaintext string `json:"plaintext"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	SiteID     string         `json:"site_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type SiteConfigResponse struct {
	Site struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"site"`
	Urgencies []string          `json:"urgencies"`
	Labels    map[string]string `json:"labels"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedReports struct {
	Items      []ReportResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func reportResponse(r domain.FaultReport) ReportResponse {
	return ReportResponse{
		ID:          r.ID,
		SiteID:      r.SiteID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Urgency:     r.Urgency,
		Attachments: r.Attachments,
		Status:      string(r.Status),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func mapReports(items []domain.FaultReport) []ReportResponse {
	res := make([]ReportResponse, 0, len(items))
	for _, r := range items {
		res = append(res, reportResponse(r))
	}
	return res
}

// actionResponse resolves label keys through the site config so clients
// receive display-ready strings alongside the raw key.
func actionResponse(a workflow.TransitionAction, cfg *config.Config) ActionResponse {
	return ActionResponse{
		Target:       string(a.Target),
		Label:        cfg.Label(a.Label),
		Mode:         string(a.Mode),
		Destructive:  a.Destructive,
		ConfirmTitle: cfg.Label(a.ConfirmTitle),
		ConfirmBody:  cfg.Label(a.ConfirmBody),
	}
}

func mapActions(items []workflow.TransitionAction, cfg *config.Config) []ActionResponse {
	res := make([]ActionResponse, 0, len(items))
	for _, a := range items {
		res = append(res, actionResponse(a, cfg))
	}
	return res
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse(c)
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SiteID:     e.SiteID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) SiteConfigResponse {
	var res SiteConfigResponse
	res.Site.ID = cfg.Site.ID
	res.Site.Name = cfg.Site.Name
	res.Urgencies = nonNilSlice(cfg.Urgencies)
	res.Labels = cfg.Labels
	if res.Labels == nil {
		res.Labels = map[string]string{}
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
