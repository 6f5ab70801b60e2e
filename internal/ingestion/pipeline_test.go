package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/extractor"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"github.com/ternarybob/quaero/internal/validator"
)

type fakeScraper struct {
	result interfaces.ScrapeResult
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) interfaces.ScrapeResult {
	return f.result
}

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, req *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &interfaces.ContentResponse{Text: f.text}, nil
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func baseCandidate() validator.Candidate {
	return validator.Candidate{
		PlaceID:          "place_1",
		Name:             "River City Food Pantry",
		FormattedAddress: "123 Main St",
		City:             "Denver",
		State:            "CO",
		Point:            models.Point{Lat: 39.7, Lng: -104.9},
		Website:          "https://example.org",
	}
}

func TestIngest_MissingNameOrCoordinatesDrops(t *testing.T) {
	p := New(&fakeScraper{}, extractor.New(&fakeGenerator{}, "gemini-2.5-flash", testLogger()), testLogger())

	outcome := p.Ingest(context.Background(), validator.Candidate{})

	require.Equal(t, KindDropped, outcome.Kind)
	require.NotEmpty(t, outcome.DropReason)
}

func TestIngest_NoWebsiteYieldsPlacesOnly(t *testing.T) {
	candidate := baseCandidate()
	candidate.Website = ""
	p := New(&fakeScraper{}, extractor.New(&fakeGenerator{}, "gemini-2.5-flash", testLogger()), testLogger())

	outcome := p.Ingest(context.Background(), candidate)

	require.Equal(t, KindPlacesOnly, outcome.Kind)
	require.Equal(t, models.StatusUnknown, outcome.Pantry.Status)
	require.Equal(t, 3, outcome.Pantry.Confidence)
	require.Equal(t, placesOnlyNote, outcome.Pantry.SpecialNotes)
}

func TestIngest_ScrapeFailureFallsBackToPlacesOnly(t *testing.T) {
	scraper := &fakeScraper{result: interfaces.ScrapeResult{Failed: true, Reason: interfaces.ScrapeFailureTimeout}}
	p := New(scraper, extractor.New(&fakeGenerator{}, "gemini-2.5-flash", testLogger()), testLogger())

	outcome := p.Ingest(context.Background(), baseCandidate())

	require.Equal(t, KindPlacesOnly, outcome.Kind)
}

func TestIngest_ExtractFailureFallsBackToPlacesOnly(t *testing.T) {
	scraper := &fakeScraper{result: interfaces.ScrapeResult{Markdown: "some content", Method: "static"}}
	gen := &fakeGenerator{text: "not json"}
	p := New(scraper, extractor.New(gen, "gemini-2.5-flash", testLogger()), testLogger())

	outcome := p.Ingest(context.Background(), baseCandidate())

	require.Equal(t, KindPlacesOnly, outcome.Kind)
}

func TestIngest_SuccessYieldsEnriched(t *testing.T) {
	scraper := &fakeScraper{result: interfaces.ScrapeResult{Markdown: "Open Mon-Fri 9-5", Method: "static"}}
	gen := &fakeGenerator{text: `{"status":"OPEN","hours_notes":"Mon-Fri 9-5","eligibility_rules":["residents only"],"is_id_required":true,"confidence":8}`}
	p := New(scraper, extractor.New(gen, "gemini-2.5-flash", testLogger()), testLogger())

	outcome := p.Ingest(context.Background(), baseCandidate())

	require.Equal(t, KindEnriched, outcome.Kind)
	require.Equal(t, models.StatusOpen, outcome.Pantry.Status)
	require.Equal(t, 8, outcome.Pantry.Confidence)
	require.Equal(t, "static", outcome.Pantry.ScrapeMethod)
	require.False(t, outcome.Pantry.ScrapedAt.IsZero())
}
