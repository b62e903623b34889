package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is the complete schema for fresh installs. Statements are
// idempotent so EnsureSchema is safe to run on every boot.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	firebase_uid TEXT NOT NULL UNIQUE,
	email        TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	public_id    TEXT NOT NULL UNIQUE,
	user_id      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	build_status TEXT NOT NULL CHECK(build_status IN ('idle', 'processing')) DEFAULT 'idle',
	locked_by    UUID,
	locked_at    TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS builds (
	project_id   UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	version      INTEGER NOT NULL CHECK(version >= 1),
	files        JSONB NOT NULL DEFAULT '{}'::jsonb,
	summary      TEXT NOT NULL DEFAULT '',
	preview_html TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (project_id, version)
);

CREATE TABLE IF NOT EXISTS project_messages (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	seq           BIGSERIAL,
	project_id    UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	role          TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
	content       TEXT NOT NULL,
	build_version INTEGER,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_projects_locked ON projects(locked_at) WHERE build_status = 'processing';
CREATE INDEX IF NOT EXISTS idx_builds_project_created ON builds(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_project_messages_project_seq ON project_messages(project_id, seq);
`

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
