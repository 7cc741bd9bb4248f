package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"faultline/internal/config"
	"faultline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertSite(ctx context.Context, tx *sql.Tx, s domain.Site) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sites(id,name,address,created_at) VALUES (?,?,?,?)`,
		s.ID, s.Name, nullable(s.Address), s.CreatedAt)
	return err
}

func (r Repo) GetSite(ctx context.Context, id string) (domain.Site, error) {
	var s domain.Site
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(address,''),created_at FROM sites WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &s.Address, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(address,''),created_at FROM sites ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sites []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.CreatedAt); err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (r Repo) SingleSite(ctx context.Context) (domain.Site, error) {
	sites, err := r.ListSites(ctx)
	if err != nil {
		return domain.Site{}, err
	}
	if len(sites) == 0 {
		return domain.Site{}, ErrNotFound
	}
	if len(sites) > 1 {
		return domain.Site{}, fmt.Errorf("multiple sites exist; specify --site")
	}
	return sites[0], nil
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.FaultReport) error {
	attachments, err := marshalAttachments(rep.Attachments)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(id,site_id,title,description,location,urgency,attachments_json,status,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.SiteID, rep.Title, nullable(rep.Description), nullable(rep.Location), nullable(rep.Urgency),
		attachments, string(rep.Status), rep.CreatedBy, rep.CreatedAt, rep.UpdatedAt)
	return err
}

const reportColumns = `id,site_id,title,COALESCE(description,''),COALESCE(location,''),COALESCE(urgency,''),COALESCE(attachments_json,''),status,created_by,created_at,updated_at`

func scanReport(scan func(dest ...any) error) (domain.FaultReport, error) {
	var rep domain.FaultReport
	var status, attachments string
	err := scan(&rep.ID, &rep.SiteID, &rep.Title, &rep.Description, &rep.Location, &rep.Urgency,
		&attachments, &status, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	rep.Status = domain.Status(status)
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &rep.Attachments); err != nil {
			return rep, fmt.Errorf("attachments json: %w", err)
		}
	}
	return rep, nil
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.FaultReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id)
	return scanReport(row.Scan)
}

// ReportFilters narrows ListReports.
type ReportFilters struct {
	SiteID    string
	Status    domain.Status
	CreatedBy string
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.FaultReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var (
		clauses []string
		args    []any
	)
	if f.SiteID != "" {
		clauses = append(clauses, "site_id=?")
		args = append(args, f.SiteID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FaultReport
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r Repo) UpdateReportStatus(ctx context.Context, tx *sql.Tx, id string, status domain.Status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteReport(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM reports WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountReportsByStatus(ctx context.Context, siteID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports WHERE site_id=? GROUP BY status`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) UpsertSiteConfig(ctx context.Context, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, r.DB, nil, siteID, cfg)
}

func (r Repo) UpsertSiteConfigTx(ctx context.Context, tx *sql.Tx, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, nil, tx, siteID, cfg)
}

func upsertSiteConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, siteID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Site.ID = siteID
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yamlMarshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	query := `INSERT INTO site_configs(site_id,yaml,updated_at) VALUES (?,?,?)
ON CONFLICT(site_id) DO UPDATE SET yaml=excluded.yaml, updated_at=excluded.updated_at`
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, siteID, data, now)
	} else {
		_, err = db.ExecContext(ctx, query, siteID, data, now)
	}
	return err
}

func (r Repo) GetSiteConfig(ctx context.Context, siteID string) (*config.Config, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT yaml FROM site_configs WHERE site_id=?`, siteID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(data))
}

// LatestEvents returns newest-first events with optional filters.
func (r Repo) LatestEvents(ctx context.Context, limit int, siteID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,COALESCE(site_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if siteID != "" {
		clauses = append(clauses, "site_id=?")
		args = append(args, siteID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, siteID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,COALESCE(site_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>?`
	args := []any{cursor}
	if siteID != "" {
		query += " AND site_id=?"
		args = append(args, siteID)
	}
	query += " ORDER BY id ASC LIMIT ?"
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) LatestEventID(ctx context.Context, siteID string) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE site_id=?`, siteID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SiteID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func yamlMarshal(cfg *config.Config) (string, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config yaml: %w", err)
	}
	return string(b), nil
}

func marshalAttachments(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
