package builds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("build not found")
	ErrProjectNotFound = errors.New("project not found")

	// ErrVersionConflict means two appends raced to the same version
	// number. The ledger is append-only; the loser must abort, never
	// overwrite.
	ErrVersionConflict = errors.New("build version conflict")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Build is one immutable ledger entry. Files maps relative paths to
// full file contents.
type Build struct {
	ProjectID   string            `json:"-"`
	Version     int               `json:"version"`
	Files       map[string]string `json:"files"`
	Summary     string            `json:"summary"`
	PreviewHTML string            `json:"preview_html,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Meta is the listing view of a ledger entry, without file bodies.
type Meta struct {
	Version   int       `json:"version"`
	Summary   string    `json:"summary"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

type AppendInput struct {
	Files       map[string]string
	Summary     string
	PreviewHTML string
}

// Append writes the next version for projectID. The project row is
// locked for the duration of the transaction so concurrent appends
// serialize and version numbers come out dense: 1, 2, 3 with no gaps.
// The (project_id, version) primary key is the last line of defense;
// a duplicate insert aborts with ErrVersionConflict.
func (r *Repo) Append(ctx context.Context, projectID string, in AppendInput) (*Build, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("files required")
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ok string
	err = tx.QueryRow(ctx, `
select id::text
from projects
where id = $1::uuid and deleted_at is null
for update
`, projectID).Scan(&ok)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	var next int
	if err := tx.QueryRow(ctx, `
select coalesce(max(version), 0) + 1
from builds
where project_id = $1::uuid
`, projectID).Scan(&next); err != nil {
		return nil, err
	}

	b := Build{
		ProjectID:   projectID,
		Version:     next,
		Files:       in.Files,
		Summary:     in.Summary,
		PreviewHTML: in.PreviewHTML,
	}

	err = tx.QueryRow(ctx, `
insert into builds (project_id, version, files, summary, preview_html)
values ($1::uuid, $2, $3, $4, $5)
returning created_at
`, projectID, next, in.Files, in.Summary, in.PreviewHTML).Scan(&b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
update projects
set updated_at = now()
where id = $1::uuid
`, projectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &b, nil
}

const buildColumns = `project_id::text, version, files, summary, preview_html, created_at`

func (r *Repo) GetByVersion(ctx context.Context, projectID string, version int) (*Build, error) {
	q := `
select ` + buildColumns + `
from builds
where project_id = $1::uuid and version = $2
`
	var b Build
	err := r.db.QueryRow(ctx, q, projectID, version).Scan(
		&b.ProjectID, &b.Version, &b.Files, &b.Summary, &b.PreviewHTML, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetLatest(ctx context.Context, projectID string) (*Build, error) {
	q := `
select ` + buildColumns + `
from builds
where project_id = $1::uuid
order by version desc
limit 1
`
	var b Build
	err := r.db.QueryRow(ctx, q, projectID).Scan(
		&b.ProjectID, &b.Version, &b.Files, &b.Summary, &b.PreviewHTML, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns version metadata newest-first, file bodies omitted.
func (r *Repo) List(ctx context.Context, projectID string) ([]Meta, error) {
	const q = `
select version, summary, (select count(*) from jsonb_object_keys(files)), created_at
from builds
where project_id = $1::uuid
order by version desc
`
	rows, err := r.db.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Meta, 0, 8)
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.Version, &m.Summary, &m.FileCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
