package locks

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper periodically releases locks abandoned by crashed builds.
type Reaper struct {
	mgr        *Manager
	staleAfter time.Duration
	schedule   string
	c          *cron.Cron
}

func NewReaper(mgr *Manager, staleAfter time.Duration, schedule string) *Reaper {
	return &Reaper{
		mgr:        mgr,
		staleAfter: staleAfter,
		schedule:   schedule,
	}
}

// Start registers the sweep on the cron schedule (with seconds field,
// e.g. "0 * * * * *" for every minute) and begins running it.
func (r *Reaper) Start() error {
	r.c = cron.New(cron.WithSeconds())

	_, err := r.c.AddFunc(r.schedule, func() {
		n, err := r.mgr.ReleaseStale(context.Background(), r.staleAfter)
		if err != nil {
			log.Printf("[locks] stale sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[locks] released %d stale lock(s) older than %s", n, r.staleAfter)
		}
	})
	if err != nil {
		return err
	}

	log.Printf("[locks] reaper started schedule=%q stale_after=%s", r.schedule, r.staleAfter)
	r.c.Start()
	return nil
}

func (r *Reaper) Stop() {
	if r.c != nil {
		r.c.Stop()
	}
}
