// Package orchestrator owns discovery jobs end-to-end: it drives Places ->
// worker-pool ingestion -> store upsert, publishes typed events per job,
// and exposes the read-side queries over the pantry store (spec §4.6, §6).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/ingestion"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	qvalidator "github.com/ternarybob/quaero/internal/validator"
)

// StartJobInput is the validated inbound geo query for StartJob (spec §6).
type StartJobInput struct {
	Query        string   `validate:"required"`
	Lat          float64  `validate:"min=-90,max=90"`
	Lng          float64  `validate:"min=-180,max=180"`
	RadiusMeters int      `validate:"required,min=1"`
	Variants     []string `validate:"omitempty,dive,required"`
}

// StartJobResult is StartJob's response.
type StartJobResult struct {
	JobID            string
	ExistingPantries int
}

// Orchestrator is the Discovery Orchestration Core's composition root for
// everything job-shaped: job registry, worker pool, event bus, rate
// limiting, and housekeeping. It holds no HTTP surface (spec Non-goals);
// callers are the §6 operations directly.
type Orchestrator struct {
	storage     interfaces.StorageManager
	places      interfaces.PlacesClient
	pipeline    *ingestion.Pipeline
	bus         *EventBus
	pool        *workerPool
	registry    *registry
	limiter     *RateLimiter
	house       *housekeeping
	structCheck *validator.Validate
	config      common.DiscoveryConfig
	logger      arbor.ILogger
	now         func() time.Time
}

// New builds an Orchestrator. Start must be called before StartJob is used.
func New(storage interfaces.StorageManager, places interfaces.PlacesClient, pipeline *ingestion.Pipeline, config common.DiscoveryConfig, logger arbor.ILogger) *Orchestrator {
	now := time.Now
	limiter := NewRateLimiter()
	reg := newRegistry(now)
	bus := NewEventBus(config.SubscriberSlowThreshold, logger)
	pool := newWorkerPool(config.WorkerConcurrency, logger)
	house := newHousekeeping(storage.PlacesCacheStorage(), config.PlacesCacheTTL, reg, config.JobGracePeriod, limiter, logger)

	return &Orchestrator{
		storage:     storage,
		places:      places,
		pipeline:    pipeline,
		bus:         bus,
		pool:        pool,
		registry:    reg,
		limiter:     limiter,
		house:       house,
		structCheck: validator.New(),
		config:      config,
		logger:      logger,
		now:         now,
	}
}

// Start launches housekeeping (places-cache sweep, registry GC, rate
// limiter reaping).
func (o *Orchestrator) Start() error {
	return o.house.start()
}

// Stop halts housekeeping. In-flight jobs are left to drain on their own
// contexts; call StopJob individually to cancel them.
func (o *Orchestrator) Stop() {
	o.house.stop()
}

// Allow exposes the per-caller rate limiter hook (spec §4.6).
func (o *Orchestrator) Allow(callerID string, kind RequestKind) bool {
	return o.limiter.Allow(callerID, kind)
}

// StartJob allocates a job, reports how many pantries already exist in the
// requested region, and kicks off asynchronous discovery (spec §4.6).
func (o *Orchestrator) StartJob(ctx context.Context, callerID string, input StartJobInput) (StartJobResult, error) {
	if err := o.structCheck.Struct(input); err != nil {
		return StartJobResult{}, fmt.Errorf("invalid start job input: %w", err)
	}
	if !o.limiter.Allow(callerID, KindStartJob) {
		return StartJobResult{}, fmt.Errorf("rate limit exceeded for start_job")
	}

	center := models.Point{Lat: input.Lat, Lng: input.Lng}
	variants := input.Variants
	if len(variants) == 0 {
		variants = o.config.PlacesVariants
	}

	existing, err := o.storage.PantryStorage().Nearby(ctx, interfaces.NearbyQuery{
		Center:      center,
		MaxDistance: float64(input.RadiusMeters),
		Limit:       0,
	})
	if err != nil {
		return StartJobResult{}, fmt.Errorf("failed to query existing pantries: %w", err)
	}

	jobID := common.NewJobID()
	jobCtx, cancel := context.WithTimeout(context.Background(), o.config.JobTimeout)
	o.registry.create(jobID, center, input.RadiusMeters, input.Query, variants, cancel)

	o.bus.Publish(jobID, models.Event{Type: models.EventJobStarted, Payload: models.JobStartedPayload{UrlsFound: 0}})

	common.SafeGoWithContext(jobCtx, o.logger, "orchestrator.job."+jobID, func() {
		defer cancel()
		o.runJob(jobCtx, jobID, center, input.RadiusMeters, variants)
	})

	return StartJobResult{JobID: jobID, ExistingPantries: len(existing)}, nil
}

// runJob drives one job from places lookup through drain (spec §4.6, §5).
func (o *Orchestrator) runJob(ctx context.Context, jobID string, center models.Point, radiusMeters int, variants []string) {
	o.registry.transition(jobID, models.JobRunning)

	candidateSet, err := o.places.FindCandidates(ctx, center, radiusMeters, variants)
	if err != nil {
		o.bus.Publish(jobID, models.Event{Type: models.EventError, Payload: models.ErrorPayload{Message: err.Error()}})
		o.finishJob(jobID, models.JobFailed)
		return
	}

	n := len(candidateSet.Candidates)
	o.registry.setUrlsFound(jobID, n)
	o.bus.Publish(jobID, models.Event{Type: models.EventJobStarted, Payload: models.JobStartedPayload{UrlsFound: n}})

	if n == 0 {
		o.finishJob(jobID, models.JobCompleted)
		return
	}

	placeIDs := make([]string, n)
	for i, c := range candidateSet.Candidates {
		placeIDs[i] = c.PlaceID
	}
	existingIDs, err := o.storage.PantryStorage().ExistingPlaceIDs(ctx, placeIDs)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to check existing place IDs, treating all as new")
		existingIDs = map[string]bool{}
	}

	stopProgress := o.startProgressCoalescer(ctx, jobID)
	defer stopProgress()

	var wg sync.WaitGroup
	for _, candidate := range candidateSet.Candidates {
		if ctx.Err() != nil {
			break
		}
		if existingIDs[candidate.PlaceID] {
			o.registry.incrementCounter(jobID, models.EventPantrySkipped)
			o.bus.Publish(jobID, models.Event{Type: models.EventPantrySkipped, Payload: models.PantrySkippedPayload{PlaceID: candidate.PlaceID, Reason: "already_known"}})
			continue
		}

		wg.Add(1)
		cand := candidate
		o.pool.submit(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			o.ingestCandidate(taskCtx, jobID, cand)
		})
	}

	wg.Wait()
	o.finishJob(jobID, models.JobCompleted)
}

// ingestCandidate runs one candidate through the Ingestion Pipeline and
// upserts/publishes the outcome (spec §4.6 worker-task body). A ctx already
// cancelled when this task starts (it may have sat queued behind a StopJob)
// is a cheap no-op: the worker pool always invokes the task body so the
// caller's wg.Done() runs, but there's no point paying for a scrape/LLM
// call whose result nobody is waiting for.
func (o *Orchestrator) ingestCandidate(ctx context.Context, jobID string, candidate models.Candidate) {
	if ctx.Err() != nil {
		return
	}

	city, state := parseCityState(candidate.FormattedAddress)
	vc := qvalidator.Candidate{
		PlaceID:          candidate.PlaceID,
		Name:             candidate.Name,
		FormattedAddress: candidate.FormattedAddress,
		City:             city,
		State:            state,
		Point:            models.Point{Lat: candidate.Lat, Lng: candidate.Lng},
		Website:          candidate.Website,
	}

	outcome := o.pipeline.Ingest(ctx, vc)
	switch outcome.Kind {
	case ingestion.KindDropped:
		o.registry.incrementCounter(jobID, models.EventPantryFailed)
		o.bus.Publish(jobID, models.Event{Type: models.EventPantryFailed, Payload: models.PantryFailedPayload{URL: candidate.Website, Reason: outcome.DropReason}})
	default:
		outcome.Pantry.LastUpdated = o.now()
		stored, err := o.storage.PantryStorage().Upsert(ctx, outcome.Pantry)
		if err != nil {
			o.logger.Warn().Err(err).Str("place_id", candidate.PlaceID).Msg("failed to upsert pantry")
			o.registry.incrementCounter(jobID, models.EventPantryFailed)
			o.bus.Publish(jobID, models.Event{Type: models.EventPantryFailed, Payload: models.PantryFailedPayload{URL: candidate.Website, Reason: err.Error()}})
			return
		}
		o.registry.incrementCounter(jobID, models.EventPantryDiscovered)
		o.bus.Publish(jobID, models.Event{Type: models.EventPantryDiscovered, Payload: models.PantryDiscoveredPayload{Pantry: stored}})
	}
}

// startProgressCoalescer publishes at most one progress event per
// ProgressCoalesce interval while counters are still changing (spec §4.6,
// Open Question (b): payload fixed at {total, succeeded, failed}).
func (o *Orchestrator) startProgressCoalescer(ctx context.Context, jobID string) func() {
	interval := o.config.ProgressCoalesce
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	done := make(chan struct{})

	common.SafeGo(o.logger, "orchestrator.progress."+jobID, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var last models.JobCounters
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				current := o.registry.counters(jobID)
				if current != last {
					last = current
					o.bus.Publish(jobID, models.Event{Type: models.EventProgress, Payload: models.ProgressPayload{
						Total:     current.Total(),
						Succeeded: current.Succeeded,
						Failed:    current.Failed,
					}})
				}
			}
		}
	})

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (o *Orchestrator) finishJob(jobID string, status models.JobStatus) {
	o.registry.transition(jobID, status)
	counters := o.registry.counters(jobID)
	o.bus.Publish(jobID, models.Event{Type: models.EventComplete, Payload: models.CompletePayload{
		Found:   counters.Succeeded,
		Failed:  counters.Failed,
		Skipped: counters.Skipped,
	}})
	o.bus.Close(jobID)
}

// Subscribe streams jobID's events until terminal (spec §6). A synthesized
// job_started reflecting current state is delivered first so late
// subscribers see activity immediately.
func (o *Orchestrator) Subscribe(ctx context.Context, callerID string, jobID string) (<-chan models.Event, func(), error) {
	if !o.limiter.Allow(callerID, KindSubscribe) {
		return nil, nil, fmt.Errorf("rate limit exceeded for subscribe")
	}
	job, ok := o.registry.get(jobID)
	if !ok {
		return nil, nil, fmt.Errorf("job %s not found", jobID)
	}

	ch, unsubscribe, err := o.bus.Subscribe(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	synthesized := make(chan models.Event, subscriberBufferDepth+1)
	synthesized <- models.Event{Type: models.EventJobStarted, Payload: models.JobStartedPayload{UrlsFound: job.UrlsFound}}
	common.SafeGo(o.logger, "orchestrator.subscribe.relay", func() {
		defer close(synthesized)
		for ev := range ch {
			synthesized <- ev
		}
	})

	return synthesized, unsubscribe, nil
}

// JobStatus returns the current snapshot of jobID (spec §6).
func (o *Orchestrator) JobStatus(jobID string) (models.Job, bool) {
	return o.registry.get(jobID)
}

// StopJob cancels jobID's root context. Idempotent: repeated calls and
// calls against an unknown or already-terminal job are all safe no-ops.
func (o *Orchestrator) StopJob(jobID string) {
	o.registry.cancel(jobID)
}

// ListPantries returns pantries ordered by city, name, optionally filtered
// (spec §6, SUPPLEMENTED FEATURES pagination-free ordering).
func (o *Orchestrator) ListPantries(ctx context.Context, opts interfaces.PantryListOptions) ([]models.Pantry, error) {
	return o.storage.PantryStorage().List(ctx, opts)
}

// NearbyPantries returns pantries within query.MaxDistance of query.Center,
// ordered by ascending distance (spec §6, S6).
func (o *Orchestrator) NearbyPantries(ctx context.Context, query interfaces.NearbyQuery) ([]interfaces.NearbyResult, error) {
	return o.storage.PantryStorage().Nearby(ctx, query)
}

// ListCities returns per-city pantry counts and centroids (spec §6).
func (o *Orchestrator) ListCities(ctx context.Context) ([]interfaces.CityGroup, error) {
	return o.storage.PantryStorage().ListCities(ctx)
}

// IngestOne re-runs the Ingestion Pipeline for an already-known pantry
// synchronously, outside the job/worker-pool machinery (spec §4.5, §6).
func (o *Orchestrator) IngestOne(ctx context.Context, pantryID string) (models.Pantry, error) {
	existing, err := o.storage.PantryStorage().GetByID(ctx, pantryID)
	if err != nil {
		return models.Pantry{}, fmt.Errorf("failed to load pantry %s: %w", pantryID, err)
	}
	if existing == nil {
		return models.Pantry{}, fmt.Errorf("pantry %s not found", pantryID)
	}

	vc := qvalidator.Candidate{
		PlaceID:          existing.PlaceID,
		Name:             existing.Name,
		FormattedAddress: existing.Address,
		City:             existing.City,
		State:            existing.State,
		Point:            existing.Point,
		Website:          existing.SourceURL,
	}

	outcome := o.pipeline.Ingest(ctx, vc)
	if outcome.Kind == ingestion.KindDropped {
		return models.Pantry{}, fmt.Errorf("ingestion dropped pantry %s: %s", pantryID, outcome.DropReason)
	}

	outcome.Pantry.ID = existing.ID
	outcome.Pantry.LastUpdated = o.now()
	return o.storage.PantryStorage().Upsert(ctx, outcome.Pantry)
}
