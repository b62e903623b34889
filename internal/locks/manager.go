package locks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when the project is already locked by an
// in-flight build.
var ErrConflict = errors.New("project build already in progress")

// DB is the slice of pgxpool.Pool the manager needs. Kept narrow so
// tests can stub it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Options struct {
	// FailOpen lets Acquire succeed when the lock store itself errors,
	// trading mutual exclusion for availability. Default is fail-closed.
	FailOpen bool
}

// Manager serializes builds per project. Lock state lives in the
// projects row, never in process memory, so any replica can acquire or
// release and a crashed holder leaves a recoverable locked_at trail.
type Manager struct {
	db       DB
	failOpen bool
}

func NewManager(db DB, opts Options) *Manager {
	return &Manager{db: db, failOpen: opts.FailOpen}
}

// Acquire claims the build flag for projectID on behalf of holderID.
// The claim is a single conditional update; the row count decides the
// outcome. There is no read-then-write window.
//
// Zero rows means another build holds the flag. Callers are expected to
// have verified the project exists before acquiring. An empty holderID
// is a caller bug and is rejected before touching the store, so the
// fail-open path cannot swallow it.
func (m *Manager) Acquire(ctx context.Context, projectID, holderID string) error {
	if holderID == "" {
		return fmt.Errorf("acquire lock: holder id required")
	}

	const q = `
update projects
set build_status = 'processing', locked_by = $2::uuid, locked_at = now(), updated_at = now()
where id = $1::uuid and build_status = 'idle' and deleted_at is null;
`
	ct, err := m.db.Exec(ctx, q, projectID, holderID)
	if err != nil {
		if m.failOpen {
			log.Printf("[locks] acquire failed open project=%s err=%v", projectID, err)
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Release clears the build flag unconditionally. It must be called on
// every exit path of a build, success or not, so it never conditions on
// who holds the flag.
func (m *Manager) Release(ctx context.Context, projectID string) error {
	const q = `
update projects
set build_status = 'idle', locked_by = null, locked_at = null, updated_at = now()
where id = $1::uuid;
`
	if _, err := m.db.Exec(ctx, q, projectID); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// ReleaseStale clears flags whose locked_at is older than the cutoff.
// A holder that crashed without releasing leaves exactly this state.
func (m *Manager) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
update projects
set build_status = 'idle', locked_by = null, locked_at = null, updated_at = now()
where build_status = 'processing' and locked_at is not null and locked_at < $1;
`
	cutoff := time.Now().Add(-olderThan)
	ct, err := m.db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return ct.RowsAffected(), nil
}
