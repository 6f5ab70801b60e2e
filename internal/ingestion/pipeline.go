// Package ingestion composes the Scraper, Extractor, and Validator into the
// single-candidate pipeline used both by the orchestrator's worker pool and
// by IngestOne's synchronous on-demand re-enrichment (spec §4.5).
package ingestion

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/extractor"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"github.com/ternarybob/quaero/internal/validator"
)

// OutcomeKind classifies the result of Ingest.
type OutcomeKind string

const (
	KindEnriched   OutcomeKind = "enriched"
	KindPlacesOnly OutcomeKind = "places_only"
	KindDropped    OutcomeKind = "dropped"
)

const placesOnlyNote = "Limited info — places-only"

// Outcome is the result of running one candidate through the pipeline.
type Outcome struct {
	Kind       OutcomeKind
	Pantry     models.Pantry
	DropReason string
}

// Pipeline runs Scraper -> Extractor -> Validator for a single candidate.
type Pipeline struct {
	scraper   interfaces.Scraper
	extractor *extractor.Extractor
	logger    arbor.ILogger
	now       func() time.Time
}

// New builds a Pipeline.
func New(scraper interfaces.Scraper, ext *extractor.Extractor, logger arbor.ILogger) *Pipeline {
	return &Pipeline{scraper: scraper, extractor: ext, logger: logger, now: time.Now}
}

// Ingest runs the pipeline for one candidate. Cancellation during the scrape
// step interrupts it promptly since Scraper.Scrape is itself ctx-bound.
func (p *Pipeline) Ingest(ctx context.Context, candidate validator.Candidate) Outcome {
	if candidate.Name == "" || (candidate.Point.Lat == 0 && candidate.Point.Lng == 0) {
		return Outcome{Kind: KindDropped, DropReason: "missing name or coordinates"}
	}

	if candidate.Website == "" {
		return p.placesOnly(candidate)
	}

	scraped := p.scraper.Scrape(ctx, candidate.Website)
	if scraped.Failed {
		p.logger.Debug().Str("place_id", candidate.PlaceID).Str("url", candidate.Website).
			Str("reason", string(scraped.Reason)).Msg("scrape failed, falling back to places-only")
		return p.placesOnly(candidate)
	}

	extracted := p.extractor.Extract(ctx, scraped.Markdown, p.now())
	if extracted.Failed {
		p.logger.Debug().Str("place_id", candidate.PlaceID).
			Str("reason", string(extracted.Reason)).Msg("extraction failed, falling back to places-only")
		return p.placesOnly(candidate)
	}

	pantry := validator.Validate(candidate, extracted.Extracted, true)
	pantry.SourceURL = candidate.Website
	pantry.ScrapeMethod = scraped.Method
	pantry.ScrapedAt = p.now()
	return Outcome{Kind: KindEnriched, Pantry: pantry}
}

func (p *Pipeline) placesOnly(candidate validator.Candidate) Outcome {
	pantry := validator.Validate(candidate, extractor.Extracted{}, false)
	pantry.Status = models.StatusUnknown
	pantry.Confidence = 3
	pantry.SpecialNotes = placesOnlyNote
	return Outcome{Kind: KindPlacesOnly, Pantry: pantry}
}
