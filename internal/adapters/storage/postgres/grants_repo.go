package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"funding-share-gateway/internal/domain/grants"

	"github.com/jackc/pgx/v5/pgconn"
)

type GrantsRepo struct {
	db *sql.DB
}

func NewGrantsRepo(db *sql.DB) *GrantsRepo {
	return &GrantsRepo{db: db}
}

const grantColumns = `
	id, token, application_id, lender_id, recipient_email,
	access_level, expires_at, max_downloads, download_count,
	allowed_ip_prefixes, created_at, revoked_at
`

func (r *GrantsRepo) Create(ctx context.Context, g grants.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_grants (
			id, token, application_id, lender_id, recipient_email,
			access_level, expires_at, max_downloads, download_count,
			allowed_ip_prefixes, created_at, revoked_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		g.ID,
		g.Token,
		g.ApplicationID,
		g.LenderID,
		g.RecipientEmail,
		string(g.AccessLevel),
		g.ExpiresAt,
		g.MaxDownloads,
		g.DownloadCount,
		prefixesToTextArray(g.AllowedIPPrefixes),
		g.CreatedAt,
		toNullTime(g.RevokedAt),
	)
	if err != nil {
		// unique_violation sobre el índice de token => colisión de generación.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return grants.ErrTokenTaken
		}
		return fmt.Errorf("%w: %v", grants.ErrTransient, err)
	}
	return nil
}

func (r *GrantsRepo) GetByToken(ctx context.Context, token string) (grants.Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return grants.Grant{}, grants.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE token = $1
	`, token)

	return scanGrant(row)
}

func (r *GrantsRepo) GetByID(ctx context.Context, id string) (grants.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return grants.Grant{}, grants.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE id = $1
	`, id)

	return scanGrant(row)
}

func (r *GrantsRepo) ListByApplication(ctx context.Context, applicationID string) ([]grants.Grant, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE application_id = $1
		ORDER BY created_at ASC
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", grants.ErrTransient, err)
	}
	defer rows.Close()

	out := make([]grants.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GrantsRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET revoked_at = $2
		WHERE id = $1
		  AND revoked_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("%w: %v", grants.ErrTransient, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Ya revocado o inexistente; el service resuelve la idempotencia
		// leyendo antes, así que acá solo distinguimos inexistente.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeDownload es la primitiva atómica de cuota: incremento condicional en
// un solo statement. El WHERE re-chequea revocación, expiración y tope junto
// con el incremento, así que no hay ventana para que dos requests concurrentes
// pasen ambos con el último cupo. La lectura posterior solo clasifica una
// denegación que ya es definitiva.
func (r *GrantsRepo) ConsumeDownload(ctx context.Context, id string, now time.Time) (int, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx, `
		UPDATE access_grants
		SET download_count = download_count + 1
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
		  AND download_count < max_downloads
		RETURNING max_downloads - download_count
	`, id, now).Scan(&remaining)

	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %v", grants.ErrTransient, err)
	}

	g, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	switch g.Status(now) {
	case grants.StatusRevoked:
		return 0, grants.ErrRevoked
	case grants.StatusExpired:
		return 0, grants.ErrExpired
	default:
		return 0, grants.ErrQuotaExceeded
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (grants.Grant, error) {
	var g grants.Grant
	var level string
	var prefixes string
	var revokedAt sql.NullTime

	if err := row.Scan(
		&g.ID,
		&g.Token,
		&g.ApplicationID,
		&g.LenderID,
		&g.RecipientEmail,
		&level,
		&g.ExpiresAt,
		&g.MaxDownloads,
		&g.DownloadCount,
		&prefixes,
		&g.CreatedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grants.Grant{}, grants.ErrNotFound
		}
		return grants.Grant{}, fmt.Errorf("%w: %v", grants.ErrTransient, err)
	}

	g.AccessLevel = grants.AccessLevel(level)
	g.AllowedIPPrefixes = textArrayToPrefixes(prefixes)
	if revokedAt.Valid {
		t := revokedAt.Time
		g.RevokedAt = &t
	}
	return g, nil
}

// Codec del text[] de prefijos. El driver stdlib de pgx entrega arrays como
// su literal de Postgres en un string plano ("{10.,192.0.2.}"), y acepta esa
// misma forma como parámetro; las dos direcciones pasan por este par.
// Los prefijos son dígitos, puntos y dos puntos, así que no hay elementos
// con comillas ni comas que escapar.
func prefixesToTextArray(in []string) string {
	if len(in) == 0 {
		return "{}"
	}
	return "{" + strings.Join(in, ",") + "}"
}

func textArrayToPrefixes(in string) []string {
	in = strings.TrimSpace(in)
	in = strings.TrimPrefix(in, "{")
	in = strings.TrimSuffix(in, "}")
	if in == "" {
		return nil
	}
	parts := strings.Split(in, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
