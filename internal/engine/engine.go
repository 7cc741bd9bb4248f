package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"faultline/internal/config"
	"faultline/internal/domain"
	"faultline/internal/events"
	"faultline/internal/repo"
	"faultline/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ForbiddenError means the edge exists in the workflow but the acting
// role (or non-owner) may not traverse it. Maps to permission_denied.
type ForbiddenError struct {
	ActorID string
	Role    domain.Role
	From    domain.Status
	To      domain.Status
}

func (e ForbiddenError) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("role %s lacks permission", e.Role)
	}
	return fmt.Sprintf("role %s may not move report %s -> %s", e.Role, e.From, e.To)
}

// InvalidTransitionError means no role at all may traverse from -> to;
// the edge is not in the workflow graph. Maps to failed_precondition.
type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// InitSite creates the site and seeds its default config.
func (e Engine) InitSite(ctx context.Context, siteID, name, address, actorID string) (domain.Site, error) {
	if name == "" {
		name = siteID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Site{}, err
	}
	defer tx.Rollback()

	s := domain.Site{
		ID:        siteID,
		Name:      name,
		Address:   address,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertSite(ctx, tx, s); err != nil {
		return domain.Site{}, fmt.Errorf("insert site: %w", err)
	}
	if err := e.Repo.UpsertSiteConfigTx(ctx, tx, s.ID, config.Default(s.ID)); err != nil {
		return domain.Site{}, fmt.Errorf("insert site config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "site.init", s.ID, "site", s.ID, actorID, events.EventPayload{"name": s.Name}); err != nil {
		return domain.Site{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Site{}, err
	}
	return s, nil
}

// ReportCreateOptions are parameters for filing a fault report.
type ReportCreateOptions struct {
	ID          string
	SiteID      string
	Title       string
	Description string
	Location    string
	Urgency     string
	Attachments []string
	ActorID     string
}

// CreateReport files a new fault report in status created.
func (e Engine) CreateReport(ctx context.Context, opts ReportCreateOptions) (domain.FaultReport, error) {
	if e.Config == nil {
		return domain.FaultReport{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.FaultReport{}, errors.New("title is required")
	}
	if opts.SiteID == "" {
		return domain.FaultReport{}, errors.New("site is required")
	}
	if opts.ActorID == "" {
		return domain.FaultReport{}, errors.New("actor is required")
	}
	if opts.Urgency != "" && !e.Config.HasUrgency(opts.Urgency) {
		return domain.FaultReport{}, fmt.Errorf("urgency %s not in catalog", opts.Urgency)
	}
	if _, err := e.Repo.GetSite(ctx, opts.SiteID); err != nil {
		return domain.FaultReport{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.SiteID+"|"+opts.Title+"|"+now)).String()
	}
	rep := domain.FaultReport{
		ID:          id,
		SiteID:      opts.SiteID,
		Title:       opts.Title,
		Description: opts.Description,
		Location:    opts.Location,
		Urgency:     opts.Urgency,
		Attachments: opts.Attachments,
		Status:      domain.StatusCreated,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FaultReport{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, opts.ActorID, now); err != nil {
		return domain.FaultReport{}, err
	}
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.FaultReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.created", rep.SiteID, "report", rep.ID, opts.ActorID, events.EventPayload{
		"title":  rep.Title,
		"status": string(rep.Status),
	}); err != nil {
		return domain.FaultReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FaultReport{}, err
	}
	return rep, nil
}

// SetStatus moves a report along the lifecycle. The graph check runs
// before the role check so a stale client gets InvalidTransitionError,
// not ForbiddenError, when the report moved under it.
func (e Engine) SetStatus(ctx context.Context, reportID string, target domain.Status, actorID string) (domain.FaultReport, error) {
	if e.Config == nil {
		return domain.FaultReport{}, errors.New("config not loaded")
	}
	if !target.Valid() {
		return domain.FaultReport{}, fmt.Errorf("unknown status %s", target)
	}
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return rep, err
	}
	if !workflow.ValidEdge(rep.Status, target) {
		return rep, InvalidTransitionError{From: rep.Status, To: target}
	}
	role, err := e.Repo.ActorRole(ctx, actorID)
	if err != nil {
		return rep, err
	}
	if !permitted(rep, target, role, actorID) {
		return rep, ForbiddenError{ActorID: actorID, Role: role, From: rep.Status, To: target}
	}
	from := rep.Status
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateReportStatus(ctx, tx, rep.ID, target, now); err != nil {
		return rep, err
	}
	if err := e.Events.Append(ctx, tx, "report.status", rep.SiteID, "report", rep.ID, actorID, events.EventPayload{
		"from": string(from),
		"to":   string(target),
	}); err != nil {
		return rep, err
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}
	rep.Status = target
	rep.UpdatedAt = now
	return rep, nil
}

func permitted(rep domain.FaultReport, target domain.Status, role domain.Role, actorID string) bool {
	isOwner := rep.CreatedBy == actorID
	for _, a := range workflow.Candidates(rep.Status, role, isOwner) {
		if a.Target == target {
			return true
		}
	}
	return false
}

// Actions returns the candidate transitions the actor may take on the
// report, per the same table SetStatus enforces.
func (e Engine) Actions(ctx context.Context, reportID, actorID string) ([]workflow.TransitionAction, error) {
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	role, err := e.Repo.ActorRole(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return workflow.Candidates(rep.Status, role, rep.CreatedBy == actorID), nil
}

// AddComment appends a comment to a report.
func (e Engine) AddComment(ctx context.Context, reportID, body, actorID string) (domain.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, errors.New("body is required")
	}
	rep, err := e.Repo.GetReport(ctx, reportID)
	if err != nil {
		return domain.Comment{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Comment{
		ID:        uuid.New().String(),
		ReportID:  rep.ID,
		Body:      body,
		CreatedBy: actorID,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return c, err
	}
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "report.commented", rep.SiteID, "comment", c.ID, actorID, events.EventPayload{"report_id": rep.ID}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, reportID string) ([]domain.Comment, error) {
	if _, err := e.Repo.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, reportID)
}

// GrantRole assigns a lifecycle role to an actor, creating the actor
// record if needed.
func (e Engine) GrantRole(ctx context.Context, actorID string, role domain.Role, siteID, grantedBy string) (domain.Actor, error) {
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role %s", role)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Actor{}, err
	}
	if err := e.Repo.AssignRole(ctx, tx, actorID, role); err != nil {
		return domain.Actor{}, err
	}
	if err := e.Events.Append(ctx, tx, "role.granted", siteID, "actor", actorID, grantedBy, events.EventPayload{"role": string(role)}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{ID: actorID, Role: role, CreatedAt: now}, nil
}

// RevokeRole removes an actor's grant, dropping them back to resident.
func (e Engine) RevokeRole(ctx context.Context, actorID, siteID, revokedBy string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.RevokeRole(ctx, tx, actorID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "role.revoked", siteID, "actor", actorID, revokedBy, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// WhoAmI resolves the acting identity and its effective role.
func (e Engine) WhoAmI(ctx context.Context, actorID string) (domain.Actor, error) {
	a, err := e.Repo.GetActor(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{ID: actorID, Role: domain.RoleResident}, nil
	}
	return a, err
}

// CreateAPIKey mints a key for an actor. The plaintext is returned once
// and only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	plaintext := repo.APIKeyPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, id string) error {
	return e.Repo.DeleteAPIKey(ctx, id)
}

// ImportConfig validates and stores site config, then swaps the loaded copy.
func (e Engine) ImportConfig(ctx context.Context, siteID string, cfg *config.Config, actorID string) error {
	if err := e.Repo.UpsertSiteConfig(ctx, siteID, cfg); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "config.imported", siteID, "site", siteID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
