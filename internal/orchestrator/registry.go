package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/quaero/internal/models"
)

// registeredJob pairs a job's public record with the cancellation handle
// for its root context.
type registeredJob struct {
	job    models.Job
	cancel context.CancelFunc
}

// registry is the orchestrator's in-memory, process-local job table (spec
// §4.6, §6: "jobs — not persisted"). StartJob, terminal transitions, and
// Subscribe must be atomic relative to each other (spec §5), which this
// type's single mutex provides.
type registry struct {
	mu   sync.Mutex
	jobs map[string]*registeredJob
	now  func() time.Time
}

func newRegistry(now func() time.Time) *registry {
	return &registry{jobs: make(map[string]*registeredJob), now: now}
}

func (r *registry) create(jobID string, center models.Point, radius int, query string, variants []string, cancel context.CancelFunc) *registeredJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	rj := &registeredJob{
		job: models.Job{
			JobID:     jobID,
			Query:     query,
			Center:    center,
			Radius:    radius,
			Variants:  variants,
			Status:    models.JobCreated,
			CreatedAt: r.now(),
		},
		cancel: cancel,
	}
	r.jobs[jobID] = rj
	return rj
}

func (r *registry) get(jobID string) (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rj, ok := r.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}
	return rj.job.Snapshot(), true
}

// transition moves jobID to status unconditionally (the state machine's
// legality is enforced by the orchestrator's call sites, not here).
func (r *registry) transition(jobID string, status models.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rj, ok := r.jobs[jobID]
	if !ok {
		return
	}
	rj.job.Status = status
	if status.Terminal() {
		rj.job.FinishedAt = r.now()
	}
}

func (r *registry) setUrlsFound(jobID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rj, ok := r.jobs[jobID]; ok {
		rj.job.UrlsFound = n
	}
}

func (r *registry) incrementCounter(jobID string, kind models.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rj, ok := r.jobs[jobID]
	if !ok {
		return
	}
	switch kind {
	case models.EventPantryDiscovered:
		rj.job.Counters.Succeeded++
	case models.EventPantryFailed:
		rj.job.Counters.Failed++
	case models.EventPantrySkipped:
		rj.job.Counters.Skipped++
	}
}

func (r *registry) counters(jobID string) models.JobCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rj, ok := r.jobs[jobID]; ok {
		return rj.job.Counters
	}
	return models.JobCounters{}
}

// cancel invokes jobID's root-context cancel func. Idempotent: repeated
// calls are safe since context.CancelFunc itself is idempotent.
func (r *registry) cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rj, ok := r.jobs[jobID]
	if !ok {
		return false
	}
	rj.cancel()
	return true
}

// gc removes jobs that reached a terminal state before cutoff, returning
// the count removed (spec §4.6 job registry GC).
func (r *registry) gc(gracePeriod time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-gracePeriod)
	removed := 0
	for id, rj := range r.jobs {
		if rj.job.Status.Terminal() && rj.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
