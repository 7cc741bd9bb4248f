package repo

import (
	"context"
	"database/sql"

	"faultline/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,report_id,body,created_by,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ReportID, c.Body, c.CreatedBy, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, reportID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,report_id,body,created_by,created_at FROM comments WHERE report_id=? ORDER BY created_at`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ReportID, &c.Body, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
