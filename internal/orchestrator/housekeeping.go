package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/interfaces"
)

// housekeeping runs the orchestrator's periodic maintenance via
// robfig/cron/v3, matching the teacher's scheduler_service.go pattern of a
// single *cron.Cron driving named jobs rather than bare tickers.
type housekeeping struct {
	cron        *cron.Cron
	cache       interfaces.PlacesCacheStorage
	cacheTTL    time.Duration
	registry    *registry
	gracePeriod time.Duration
	limiter     *RateLimiter
	logger      arbor.ILogger
}

func newHousekeeping(cache interfaces.PlacesCacheStorage, cacheTTL time.Duration, reg *registry, gracePeriod time.Duration, limiter *RateLimiter, logger arbor.ILogger) *housekeeping {
	return &housekeeping{
		cron:        cron.New(),
		cache:       cache,
		cacheTTL:    cacheTTL,
		registry:    reg,
		gracePeriod: gracePeriod,
		limiter:     limiter,
		logger:      logger,
	}
}

// start registers and starts the housekeeping jobs: an hourly places-cache
// TTL sweep and a 5-minute job-registry GC sweep, both well under the
// shortest interval they need to matter at (7-day cache TTL, 10-minute
// grace period), plus a 10-minute reap of idle per-caller rate limiters.
func (h *housekeeping) start() error {
	if _, err := h.cron.AddFunc("@every 1h", h.sweepCache); err != nil {
		return err
	}
	if _, err := h.cron.AddFunc("@every 5m", h.gcJobs); err != nil {
		return err
	}
	if _, err := h.cron.AddFunc("@every 10m", h.reapLimiters); err != nil {
		return err
	}
	h.cron.Start()
	return nil
}

func (h *housekeeping) stop() {
	ctx := h.cron.Stop()
	<-ctx.Done()
}

func (h *housekeeping) sweepCache() {
	n, err := h.cache.Sweep(context.Background(), h.cacheTTL)
	if err != nil {
		h.logger.Warn().Err(err).Msg("places cache sweep failed")
		return
	}
	if n > 0 {
		h.logger.Debug().Int("count", n).Msg("swept expired places cache entries")
	}
}

func (h *housekeeping) gcJobs() {
	n := h.registry.gc(h.gracePeriod)
	if n > 0 {
		h.logger.Debug().Int("count", n).Msg("garbage-collected terminal jobs")
	}
}

func (h *housekeeping) reapLimiters() {
	if h.limiter == nil {
		return
	}
	n := h.limiter.ReapIdle()
	if n > 0 {
		h.logger.Debug().Int("count", n).Msg("reaped idle rate limiter buckets")
	}
}
