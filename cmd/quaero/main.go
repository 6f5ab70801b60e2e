// -----------------------------------------------------------------------
// Last Modified: Friday, 8th November 2025 4:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/extractor"
	"github.com/ternarybob/quaero/internal/ingestion"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"github.com/ternarybob/quaero/internal/orchestrator"
	"github.com/ternarybob/quaero/internal/scraper"
	"github.com/ternarybob/quaero/internal/services/llm"
	"github.com/ternarybob/quaero/internal/services/places"
	"github.com/ternarybob/quaero/internal/storage"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths

	query        = flag.String("query", "", "Discovery query label (e.g. a neighborhood or city name)")
	lat          = flag.Float64("lat", 0, "Center latitude for discovery")
	lng          = flag.Float64("lng", 0, "Center longitude for discovery")
	radius       = flag.Int("radius", 8000, "Search radius in meters")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Quaero version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER), matching the teacher's composition
	// root: load config -> init logger -> print banner -> wire components.
	if len(configFiles) == 0 {
		if _, err := os.Stat("quaero.toml"); err == nil {
			configFiles = append(configFiles, "quaero.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	app, err := buildApp(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize discovery core")
	}
	defer app.close()

	if err := app.orchestrator.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start housekeeping")
	}
	defer app.orchestrator.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("interrupt received, cancelling")
		cancel()
	}()

	if *lat == 0 && *lng == 0 {
		logger.Info().Msg("no -lat/-lng given, discovery core initialized and idle; pass -lat/-lng/-query to run a job")
		<-ctx.Done()
		return
	}

	if err := runDiscovery(ctx, app, logger); err != nil {
		logger.Error().Err(err).Msg("discovery job failed")
		os.Exit(1)
	}
}

// application bundles the wired components so main can close them in
// reverse dependency order on shutdown.
type application struct {
	storage      interfaces.StorageManager
	scraper      *scraper.Scraper
	orchestrator *orchestrator.Orchestrator
}

func (a *application) close() {
	a.scraper.Close()
	if err := a.storage.Close(); err != nil {
		common.GetLogger().Warn().Err(err).Msg("failed to close storage cleanly")
	}
}

// buildApp wires the six SPEC_FULL components bottom-up: storage -> places
// client -> LLM provider -> scraper -> extractor -> ingestion pipeline ->
// orchestrator. There is no HTTP surface here (spec Non-goals); this is the
// Go-level composition root the HTTP collaborator would otherwise front.
func buildApp(config *common.Config, logger arbor.ILogger) (*application, error) {
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	placesClient := places.NewClient(
		&config.PlacesAPI,
		config.Discovery.PlacesCacheTTL,
		config.Discovery.PlacesLatLngRound,
		storageManager.PlacesCacheStorage(),
		storageManager.KeyValueStorage(),
		logger,
	)

	providerFactory := llm.NewProviderFactory(
		&config.Gemini,
		&config.Claude,
		&config.LLM,
		storageManager.KeyValueStorage(),
		logger,
	)

	scraperSvc := scraper.New(config.Discovery.ScrapeTimeout, config.Discovery.WorkerConcurrency, logger)

	defaultModel := string(config.LLM.DefaultProvider)
	if config.LLM.DefaultProvider == common.LLMProviderGemini {
		defaultModel = config.Gemini.Model
	} else if config.LLM.DefaultProvider == common.LLMProviderClaude {
		defaultModel = config.Claude.Model
	}
	extractorSvc := extractor.New(providerFactory, defaultModel, logger)

	pipeline := ingestion.New(scraperSvc, extractorSvc, logger)

	orch := orchestrator.New(storageManager, placesClient, pipeline, config.Discovery, logger)

	return &application{
		storage:      storageManager,
		scraper:      scraperSvc,
		orchestrator: orch,
	}, nil
}

// runDiscovery starts one job from CLI flags and streams its events to
// stdout until the job reaches a terminal state, the demonstration mode for
// the §6 operation surface that an HTTP collaborator would otherwise expose
// over SSE.
func runDiscovery(ctx context.Context, app *application, logger arbor.ILogger) error {
	const cliCallerID = "cli"

	result, err := app.orchestrator.StartJob(ctx, cliCallerID, orchestrator.StartJobInput{
		Query:        *query,
		Lat:          *lat,
		Lng:          *lng,
		RadiusMeters: *radius,
	})
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	logger.Info().
		Str("job_id", result.JobID).
		Int("existing_pantries", result.ExistingPantries).
		Msg("discovery job started")

	events, unsubscribe, err := app.orchestrator.Subscribe(ctx, cliCallerID, result.JobID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to job %s: %w", result.JobID, err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			app.orchestrator.StopJob(result.JobID)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(logger, result.JobID, ev)
			if ev.Type == models.EventComplete {
				return nil
			}
		case <-time.After(cliWatchdog):
			app.orchestrator.StopJob(result.JobID)
			return fmt.Errorf("job %s timed out waiting for events", result.JobID)
		}
	}
}

// cliWatchdog bounds how long runDiscovery waits between events before
// giving up, a margin past the orchestrator's own job timeout so a hung
// event relay doesn't block the CLI forever.
const cliWatchdog = 11 * time.Minute

func logEvent(logger arbor.ILogger, jobID string, ev models.Event) {
	entry := logger.Info().Str("job_id", jobID).Str("event", string(ev.Type))
	switch p := ev.Payload.(type) {
	case models.JobStartedPayload:
		entry.Int("urls_found", p.UrlsFound).Msg("job started")
	case models.ProgressPayload:
		entry.Int("total", p.Total).Int("succeeded", p.Succeeded).Int("failed", p.Failed).Msg("progress")
	case models.PantryDiscoveredPayload:
		entry.Str("pantry_id", p.Pantry.ID).Str("name", p.Pantry.Name).Msg("pantry discovered")
	case models.PantryFailedPayload:
		entry.Str("url", p.URL).Str("reason", p.Reason).Msg("pantry failed")
	case models.PantrySkippedPayload:
		entry.Str("place_id", p.PlaceID).Str("reason", p.Reason).Msg("pantry skipped")
	case models.CompletePayload:
		entry.Int("found", p.Found).Int("failed", p.Failed).Int("skipped", p.Skipped).Msg("job complete")
	case models.ErrorPayload:
		entry.Str("message", p.Message).Msg("job error")
	default:
		entry.Msg("event")
	}
}
