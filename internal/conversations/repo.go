package conversations

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultHistoryLimit is how many recent turns a load returns when
	// the caller does not say otherwise.
	DefaultHistoryLimit = 30

	// MaxHistoryLimit bounds any caller-supplied limit.
	MaxHistoryLimit = 50

	// maxMessageChars bounds each message body on the way out of the
	// ledger, so one giant paste cannot blow up a prompt.
	maxMessageChars = 10000
)

type Message struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"-"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	BuildVersion *int      `json:"build_version,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Append records one turn. The ledger is append-only; nothing ever
// updates or deletes a row.
func (r *Repo) Append(ctx context.Context, projectID, role, content string, buildVersion *int) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content required")
	}

	const q = `
insert into project_messages (project_id, role, content, build_version)
values ($1::uuid, $2, $3, $4)
returning id::text, created_at;
`
	m := Message{
		ProjectID:    projectID,
		Role:         role,
		Content:      content,
		BuildVersion: buildVersion,
	}
	if err := r.db.QueryRow(ctx, q, projectID, role, content, buildVersion).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadRecent returns the most recent turns in chronological order.
// A non-positive limit means DefaultHistoryLimit; anything above
// MaxHistoryLimit is clamped down. Message bodies longer than the
// per-message cap are truncated.
func (r *Repo) LoadRecent(ctx context.Context, projectID string, limit int) ([]Message, error) {
	limit = ClampLimit(limit)

	const q = `
select id::text, project_id::text, role, content, build_version, created_at
from project_messages
where project_id = $1::uuid
order by seq desc
limit $2;
`
	rows, err := r.db.Query(ctx, q, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.BuildVersion, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = ClampContent(m.Content)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query is newest-first; flip to chronological
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ClampLimit normalizes a caller-supplied history limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// ClampContent truncates a message body to the per-message cap without
// splitting a multibyte rune.
func ClampContent(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageChars {
		return s
	}
	rs := []rune(s)
	return string(rs[:maxMessageChars])
}
