package postgres

import (
	"context"
	"database/sql"
	"strings"

	"funding-share-gateway/internal/domain/audit"
)

// AuditRepo escribe sobre access_log, tabla append-only: no hay UPDATE ni
// DELETE en este adapter y no debería haberlos en ningún otro lado.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, e audit.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_log (
			id, grant_id, action, actor_address, actor_agent, detail, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		e.ID,
		e.GrantID,
		e.Action,
		e.ActorAddress,
		e.ActorAgent,
		e.Detail,
		e.CreatedAt,
	)
	return err
}

func (r *AuditRepo) ListByGrant(ctx context.Context, grantID string) ([]audit.Entry, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, grant_id, action, actor_address, actor_agent, detail, created_at
		FROM access_log
		WHERE grant_id = $1
		ORDER BY created_at ASC, id ASC
	`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(
			&e.ID,
			&e.GrantID,
			&e.Action,
			&e.ActorAddress,
			&e.ActorAgent,
			&e.Detail,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
