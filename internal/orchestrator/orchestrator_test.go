package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/extractor"
	"github.com/ternarybob/quaero/internal/ingestion"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
)

func testLoggerOrch() arbor.ILogger {
	return arbor.NewLogger()
}

func testConfig() common.DiscoveryConfig {
	cfg := common.NewDefaultConfig().Discovery
	cfg.JobTimeout = 5 * time.Second
	cfg.ProgressCoalesce = 5 * time.Millisecond
	cfg.JobGracePeriod = time.Minute
	return cfg
}

type scriptedScraper struct {
	fail   bool
	reason interfaces.ScrapeFailureReason
}

func (s scriptedScraper) Scrape(ctx context.Context, url string) interfaces.ScrapeResult {
	if url == "" {
		return interfaces.ScrapeResult{Failed: true, Reason: interfaces.ScrapeFailureEmpty}
	}
	if s.fail {
		return interfaces.ScrapeResult{Failed: true, Reason: s.reason}
	}
	return interfaces.ScrapeResult{Markdown: "Open Mon-Fri 9-5", Method: "static"}
}

type scriptedGenerator struct{}

func (scriptedGenerator) GenerateContent(ctx context.Context, req *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	return &interfaces.ContentResponse{Text: `{"status":"OPEN","eligibility_rules":["residents only"],"is_id_required":false,"confidence":7}`}, nil
}

func candidate(n int, withWebsite bool) models.Candidate {
	c := models.Candidate{
		PlaceID:          fmt.Sprintf("place_%d", n),
		Name:             fmt.Sprintf("Pantry %d", n),
		FormattedAddress: "1 Main St, Denver, CO 80202, USA",
		Lat:              39.739 + float64(n)*0.001,
		Lng:              -104.990 + float64(n)*0.001,
	}
	if withWebsite {
		c.Website = "https://example.org"
	}
	return c
}

func newTestOrchestrator(t *testing.T, places interfaces.PlacesClient, scraper interfaces.Scraper) (*Orchestrator, *fakeStorageManager) {
	storage := newFakeStorageManager()
	logger := testLoggerOrch()
	ext := extractor.New(scriptedGenerator{}, "gemini-2.5-flash", logger)
	pipeline := ingestion.New(scraper, ext, logger)
	o := New(storage, places, pipeline, testConfig(), logger)
	require.NoError(t, o.Start())
	t.Cleanup(o.Stop)
	return o, storage
}

func drainUntilComplete(t *testing.T, ch <-chan models.Event, timeout time.Duration) []models.Event {
	t.Helper()
	var events []models.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Type == models.EventComplete {
				return events
			}
		case <-deadline:
			t.Fatal("timed out waiting for complete event")
		}
	}
}

func TestStartJob_CleanDiscoveryS1(t *testing.T) {
	candidates := make([]models.Candidate, 5)
	for i := range candidates {
		candidates[i] = candidate(i, true)
	}
	places := &fakePlacesClient{set: models.CandidateSet{Fingerprint: "fp", Candidates: candidates}}
	o, storage := newTestOrchestrator(t, places, scriptedScraper{})

	result, err := o.StartJob(context.Background(), "caller-1", StartJobInput{
		Query: "Denver", Lat: 39.739, Lng: -104.990, RadiusMeters: 8000,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.ExistingPantries)

	ch, unsubscribe, err := o.Subscribe(context.Background(), "caller-1", result.JobID)
	require.NoError(t, err)
	defer unsubscribe()

	events := drainUntilComplete(t, ch, 2*time.Second)
	require.NotEmpty(t, events)
	require.Equal(t, models.EventJobStarted, events[0].Type)

	discovered := 0
	for _, ev := range events {
		if ev.Type == models.EventPantryDiscovered {
			discovered++
		}
	}
	require.Equal(t, 5, discovered)

	last := events[len(events)-1]
	require.Equal(t, models.EventComplete, last.Type)
	complete := last.Payload.(models.CompletePayload)
	require.Equal(t, 5, complete.Found)
	require.Equal(t, 0, complete.Failed)
	require.Equal(t, 0, complete.Skipped)
	require.Len(t, storage.pantries.snapshot(), 5)

	job, ok := o.JobStatus(result.JobID)
	require.True(t, ok)
	require.Equal(t, models.JobCompleted, job.Status)
}

func TestStartJob_MixedOutcomesS2(t *testing.T) {
	candidates := []models.Candidate{
		candidate(0, false),
		candidate(1, false),
		candidate(2, true),
		candidate(3, true),
		candidate(4, true),
		candidate(5, true),
	}
	places := &fakePlacesClient{set: models.CandidateSet{Candidates: candidates}}
	scraper := timeoutOnceScraper{}
	o, storage := newTestOrchestrator(t, places, &scraper)

	result, err := o.StartJob(context.Background(), "caller-2", StartJobInput{
		Query: "Denver", Lat: 39.739, Lng: -104.990, RadiusMeters: 8000,
	})
	require.NoError(t, err)

	ch, unsubscribe, err := o.Subscribe(context.Background(), "caller-2", result.JobID)
	require.NoError(t, err)
	defer unsubscribe()

	events := drainUntilComplete(t, ch, 2*time.Second)
	last := events[len(events)-1]
	complete := last.Payload.(models.CompletePayload)
	require.Equal(t, 6, complete.Found)
	require.Equal(t, 0, complete.Failed)
	require.Equal(t, 0, complete.Skipped)
	require.Len(t, storage.pantries.snapshot(), 6)
}

// timeoutOnceScraper fails whichever Scrape call arrives first with a
// timeout and succeeds on every later one (candidates without a website
// never reach Scrape -- the orchestrator test only needs one forced failure).
type timeoutOnceScraper struct {
	calls int64
}

func (s *timeoutOnceScraper) Scrape(ctx context.Context, url string) interfaces.ScrapeResult {
	if url == "" {
		return interfaces.ScrapeResult{Failed: true, Reason: interfaces.ScrapeFailureEmpty}
	}
	if atomic.AddInt64(&s.calls, 1) == 1 {
		return interfaces.ScrapeResult{Failed: true, Reason: interfaces.ScrapeFailureTimeout}
	}
	return interfaces.ScrapeResult{Markdown: "Open Mon-Fri 9-5", Method: "static"}
}

func TestStartJob_AllExistingS3(t *testing.T) {
	candidates := []models.Candidate{candidate(0, true), candidate(1, true)}
	places := &fakePlacesClient{set: models.CandidateSet{Candidates: candidates}}
	o, storage := newTestOrchestrator(t, places, scriptedScraper{})

	for _, c := range candidates {
		_, err := storage.pantries.Upsert(context.Background(), models.Pantry{PlaceID: c.PlaceID, Name: c.Name, Point: models.Point{Lat: c.Lat, Lng: c.Lng}})
		require.NoError(t, err)
	}

	result, err := o.StartJob(context.Background(), "caller-3", StartJobInput{
		Query: "Denver", Lat: 39.739, Lng: -104.990, RadiusMeters: 8000,
	})
	require.NoError(t, err)

	ch, unsubscribe, err := o.Subscribe(context.Background(), "caller-3", result.JobID)
	require.NoError(t, err)
	defer unsubscribe()

	events := drainUntilComplete(t, ch, 2*time.Second)
	skipped := 0
	for _, ev := range events {
		if ev.Type == models.EventPantrySkipped {
			skipped++
		}
	}
	require.Equal(t, 2, skipped)

	last := events[len(events)-1]
	complete := last.Payload.(models.CompletePayload)
	require.Equal(t, 0, complete.Found)
	require.Equal(t, 0, complete.Failed)
	require.Equal(t, 2, complete.Skipped)
}

func TestStartJob_ProviderOutageS4(t *testing.T) {
	places := &fakePlacesClient{err: fmt.Errorf("upstream_unavailable: all variants failed")}
	o, _ := newTestOrchestrator(t, places, scriptedScraper{})

	result, err := o.StartJob(context.Background(), "caller-4", StartJobInput{
		Query: "Denver", Lat: 39.739, Lng: -104.990, RadiusMeters: 8000,
	})
	require.NoError(t, err)

	ch, unsubscribe, err := o.Subscribe(context.Background(), "caller-4", result.JobID)
	require.NoError(t, err)
	defer unsubscribe()

	events := drainUntilComplete(t, ch, 2*time.Second)

	sawError := false
	for _, ev := range events {
		if ev.Type == models.EventError {
			sawError = true
		}
	}
	require.True(t, sawError)

	last := events[len(events)-1]
	complete := last.Payload.(models.CompletePayload)
	require.Equal(t, 0, complete.Found)
	require.Equal(t, 0, complete.Failed)
	require.Equal(t, 0, complete.Skipped)

	job, ok := o.JobStatus(result.JobID)
	require.True(t, ok)
	require.Equal(t, models.JobFailed, job.Status)
}

func TestStartJob_InvalidInputRejected(t *testing.T) {
	places := &fakePlacesClient{set: models.CandidateSet{}}
	o, _ := newTestOrchestrator(t, places, scriptedScraper{})

	_, err := o.StartJob(context.Background(), "caller-5", StartJobInput{
		Query: "", Lat: 200, Lng: -104.990, RadiusMeters: 8000,
	})
	require.Error(t, err)
}

func TestStopJob_IsIdempotentAndSafeOnUnknownJob(t *testing.T) {
	places := &fakePlacesClient{set: models.CandidateSet{}}
	o, _ := newTestOrchestrator(t, places, scriptedScraper{})

	o.StopJob("job_does_not_exist")
	o.StopJob("job_does_not_exist")
}

// blockingScraper lets a test hold open exactly as many in-flight Scrape
// calls as the worker pool's width: each call signals its own start on
// started, then blocks on ctx rather than a real timer, mirroring a real
// in-flight HTTP request that only the job's own cancellation interrupts.
type blockingScraper struct {
	started chan struct{}
}

func (s *blockingScraper) Scrape(ctx context.Context, url string) interfaces.ScrapeResult {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return interfaces.ScrapeResult{Failed: true, Reason: interfaces.ScrapeFailureTimeout}
}

// TestStopJob_CancelsMidFlightThenCompletesS5 exercises spec §8's S5
// scenario: StopJob mid-flight must still yield complete within a bounded
// time, with at most one pantry_discovered per in-flight worker and none
// from candidates that were still queued when the job was cancelled.
func TestStopJob_CancelsMidFlightThenCompletesS5(t *testing.T) {
	const workerConcurrency = 6
	candidates := make([]models.Candidate, 20)
	for i := range candidates {
		candidates[i] = candidate(i, true)
	}
	places := &fakePlacesClient{set: models.CandidateSet{Candidates: candidates}}
	scraper := &blockingScraper{started: make(chan struct{}, len(candidates))}
	o, storage := newTestOrchestrator(t, places, scraper)

	result, err := o.StartJob(context.Background(), "caller-6", StartJobInput{
		Query: "Denver", Lat: 39.739, Lng: -104.990, RadiusMeters: 8000,
	})
	require.NoError(t, err)

	ch, unsubscribe, err := o.Subscribe(context.Background(), "caller-6", result.JobID)
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < workerConcurrency; i++ {
		select {
		case <-scraper.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d expected in-flight scrapes started", i, workerConcurrency)
		}
	}

	o.StopJob(result.JobID)

	events := drainUntilComplete(t, ch, 2*time.Second)
	require.NotEmpty(t, events)
	require.Equal(t, models.EventComplete, events[len(events)-1].Type)

	discovered := 0
	for _, ev := range events {
		if ev.Type == models.EventPantryDiscovered {
			discovered++
		}
	}
	require.LessOrEqual(t, discovered, workerConcurrency)
	require.LessOrEqual(t, len(storage.pantries.snapshot()), workerConcurrency)
}

func TestNearbyPantries_FiltersByRadiusS6(t *testing.T) {
	places := &fakePlacesClient{}
	o, storage := newTestOrchestrator(t, places, scriptedScraper{})

	far := models.Pantry{PlaceID: "far", Name: "Far", Point: models.Point{Lat: 40.0, Lng: -105.5}}
	near := models.Pantry{PlaceID: "near", Name: "Near", Point: models.Point{Lat: 39.740, Lng: -104.991}}
	_, err := storage.pantries.Upsert(context.Background(), far)
	require.NoError(t, err)
	_, err = storage.pantries.Upsert(context.Background(), near)
	require.NoError(t, err)

	results, err := o.NearbyPantries(context.Background(), interfaces.NearbyQuery{
		Center:      models.Point{Lat: 39.739, Lng: -104.990},
		MaxDistance: 8000,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "near", results[0].Pantry.PlaceID)
}

func TestIngestOne_ReingestsByID(t *testing.T) {
	places := &fakePlacesClient{}
	o, storage := newTestOrchestrator(t, places, scriptedScraper{})

	stored, err := storage.pantries.Upsert(context.Background(), models.Pantry{
		PlaceID: "place_x", Name: "X Pantry", Point: models.Point{Lat: 39.7, Lng: -104.9}, SourceURL: "https://example.org",
	})
	require.NoError(t, err)

	updated, err := o.IngestOne(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, updated.Status)
	require.Equal(t, 7, updated.Confidence)
}

func TestIngestOne_UnknownPantryErrors(t *testing.T) {
	places := &fakePlacesClient{}
	o, _ := newTestOrchestrator(t, places, scriptedScraper{})

	_, err := o.IngestOne(context.Background(), "does-not-exist")
	require.Error(t, err)
}
