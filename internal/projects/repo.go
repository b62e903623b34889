package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("project not found")

// PublicIDPrefix is the prefix for shareable project IDs.
const PublicIDPrefix = "site"

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type Project struct {
	ID            string     `json:"-"`
	UserID        string     `json:"-"`
	PublicID      string     `json:"public_id"`
	Name          string     `json:"name"`
	BuildStatus   string     `json:"build_status"`
	LockedBy      *string    `json:"-"`
	LockedAt      *time.Time `json:"-"`
	LatestVersion int        `json:"latest_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const projectColumns = `
p.id::text, p.user_id::text, p.public_id, p.name, p.build_status,
p.locked_by::text, p.locked_at,
coalesce((select max(b.version) from builds b where b.project_id = p.id), 0),
p.created_at, p.updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.UserID, &p.PublicID, &p.Name, &p.BuildStatus,
		&p.LockedBy, &p.LockedAt, &p.LatestVersion,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Create(ctx context.Context, userDBID, name string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}

	for i := 0; i < 5; i++ {
		publicID, err := NewPublicID(PublicIDPrefix)
		if err != nil {
			return nil, err
		}

		const q = `
insert into projects (public_id, user_id, name)
values ($1, $2::uuid, $3)
returning id::text, user_id::text, public_id, name, build_status,
          locked_by::text, locked_at, 0, created_at, updated_at;
`
		p, err := scanProject(r.db.QueryRow(ctx, q, publicID, userDBID, name))
		if err == nil {
			return p, nil
		}

		// unique violation on public_id → retry
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to generate unique project id")
}

// GetByPublicID fetches a project regardless of owner. Callers decide
// whether a non-owner sees "forbidden" or "not found".
func (r *Repo) GetByPublicID(ctx context.Context, publicID string) (*Project, error) {
	q := `
select ` + projectColumns + `
from projects p
where p.public_id = $1 and p.deleted_at is null;
`
	p, err := scanProject(r.db.QueryRow(ctx, q, publicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) List(ctx context.Context, userDBID string) ([]Project, error) {
	q := `
select ` + projectColumns + `
from projects p
where p.user_id = $1::uuid and p.deleted_at is null
order by p.created_at desc;
`
	rows, err := r.db.Query(ctx, q, userDBID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) Rename(ctx context.Context, id, newName string) (*Project, error) {
	q := `
update projects p
set name = $2, updated_at = now()
where p.id = $1::uuid and p.deleted_at is null
returning ` + projectColumns + `;
`
	p, err := scanProject(r.db.QueryRow(ctx, q, id, newName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) SoftDelete(ctx context.Context, id string) (bool, error) {
	const q = `
update projects
set deleted_at = now(), updated_at = now()
where id = $1::uuid and deleted_at is null;
`
	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
