package server

import (
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// Janitor periodically cancels sessions that stopped making progress and
// removes terminal sessions that have been idle longer than the stale TTL,
// so the in-memory registry does not grow without bound.
type Janitor struct {
	store    *session.Store
	expr     *cronexpr.Expression
	staleTTL time.Duration
	logger   *log.Logger
	stop     chan struct{}
}

// NewJanitor parses the cron expression and builds the sweeper.
func NewJanitor(store *session.Store, cron string, staleTTL time.Duration) (*Janitor, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, err
	}
	if staleTTL <= 0 {
		staleTTL = 24 * time.Hour
	}
	return &Janitor{
		store:    store,
		expr:     expr,
		staleTTL: staleTTL,
		logger:   log.New(log.Writer(), "[JANITOR] ", log.LstdFlags),
		stop:     make(chan struct{}),
	}, nil
}

// Run blocks sweeping on the cron schedule until Stop is called.
func (j *Janitor) Run() {
	for {
		next := j.expr.Next(time.Now())
		if next.IsZero() {
			j.logger.Printf("cron schedule has no next run, janitor exiting")
			return
		}
		select {
		case <-time.After(time.Until(next)):
			j.Sweep()
		case <-j.stop:
			return
		}
	}
}

// Stop terminates the Run loop.
func (j *Janitor) Stop() { close(j.stop) }

// Sweep deletes terminal sessions whose last update is older than the TTL.
// Stale non-terminal sessions are cancelled first and picked up by a later
// sweep once they have been idle past the TTL again.
func (j *Janitor) Sweep() int {
	cutoff := time.Now().Add(-j.staleTTL)
	removed := 0
	for _, snap := range j.store.List() {
		if snap.UpdatedAt.After(cutoff) {
			continue
		}
		if !snap.Status.Terminal() {
			j.cancel(snap.ID)
			continue
		}
		if err := j.store.Delete(snap.ID); err == nil {
			removed++
			j.logger.Printf("swept stale session %s (%s, idle since %s)", snap.ID, snap.Status, snap.UpdatedAt.Format(time.RFC3339))
		}
	}
	return removed
}

func (j *Janitor) cancel(id string) {
	if r, ok := j.store.Orchestrator(id); ok {
		r.Stop()
		j.logger.Printf("cancelled stale exploration %s", id)
		return
	}
	sess, err := j.store.Get(id)
	if err != nil {
		return
	}
	sess.SetStatus(session.StatusCancelled)
	j.logger.Printf("cancelled stale session %s with no runner", id)
}
