package repo

import (
	"context"
	"database/sql"

	"faultline/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// AssignRole sets the actor's lifecycle role. One role per actor; a new
// grant replaces the previous one.
func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actor_roles(actor_id, role) VALUES (?,?)
ON CONFLICT(actor_id) DO UPDATE SET role=excluded.role`, actorID, string(role))
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=?`, actorID)
	return err
}

// ActorRole returns the actor's lifecycle role. Actors without a grant
// default to resident: self-service is the least privileged tier.
func (r Repo) ActorRole(ctx context.Context, actorID string) (domain.Role, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=?`, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return domain.RoleResident, nil
	}
	if err != nil {
		return "", err
	}
	return domain.Role(role), nil
}

func (r Repo) GetActor(ctx context.Context, actorID string) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id, created_at FROM actors WHERE id=?`, actorID).Scan(&a.ID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	role, err := r.ActorRole(ctx, actorID)
	if err != nil {
		return a, err
	}
	a.Role = role
	return a, nil
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT a.id, a.created_at, COALESCE(ar.role, '') FROM actors a
LEFT JOIN actor_roles ar ON ar.actor_id=a.id
ORDER BY a.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var role string
		if err := rows.Scan(&a.ID, &a.CreatedAt, &role); err != nil {
			return nil, err
		}
		if role == "" {
			role = string(domain.RoleResident)
		}
		a.Role = domain.Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}
