package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/interfaces"
)

type stubGenerator struct {
	responses []stubResponse
	calls     int
}

type stubResponse struct {
	text string
	err  error
}

func (s *stubGenerator) GenerateContent(ctx context.Context, req *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	r := s.responses[s.calls]
	s.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &interfaces.ContentResponse{Text: r.text}, nil
}

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestExtract_EmptyMarkdownReturnsDefaultsWithoutCallingLLM(t *testing.T) {
	gen := &stubGenerator{}
	x := New(gen, "gemini-2.5-flash", testLogger())

	result := x.Extract(context.Background(), "", time.Now())

	require.False(t, result.Failed)
	require.Equal(t, "UNKNOWN", result.Extracted.Status)
	require.Equal(t, []string{"Open to all - no restrictions listed"}, result.Extracted.EligibilityRules)
	require.False(t, result.Extracted.IsIDRequired)
	require.Equal(t, 0, gen.calls)
}

func TestExtract_ParsesJSONEmbeddedInProse(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: "Here is the result:\n{\"status\":\"OPEN\",\"hours_notes\":\"Tue/Thu 9-5\",\"eligibility_rules\":[\"Must show ID\"],\"is_id_required\":true,\"confidence\":7}\nLet me know if you need more."},
	}}
	x := New(gen, "gemini-2.5-flash", testLogger())

	result := x.Extract(context.Background(), "some scraped markdown", time.Now())

	require.False(t, result.Failed)
	require.Equal(t, "OPEN", result.Extracted.Status)
	require.Equal(t, "Tue/Thu 9-5", result.Extracted.HoursNotes)
	require.True(t, result.Extracted.IsIDRequired)
	require.Equal(t, 7, result.Extracted.Confidence)
}

func TestExtract_InvalidJSONReported(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: "not json at all"},
	}}
	x := New(gen, "gemini-2.5-flash", testLogger())

	result := x.Extract(context.Background(), "some scraped markdown", time.Now())

	require.True(t, result.Failed)
	require.Equal(t, ReasonInvalidJSON, result.Reason)
}

func TestExtract_EmptyResponseReported(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{text: ""},
	}}
	x := New(gen, "gemini-2.5-flash", testLogger())

	result := x.Extract(context.Background(), "some scraped markdown", time.Now())

	require.True(t, result.Failed)
	require.Equal(t, ReasonEmptyResponse, result.Reason)
}

func TestExtract_RetriesThenSucceeds(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{err: errors.New("rate limited")},
		{text: `{"status":"CLOSED","eligibility_rules":["residents only"],"is_id_required":false,"confidence":4}`},
	}}
	x := New(gen, "gemini-2.5-flash", testLogger())
	x.backoff = func(int) time.Duration { return 0 }

	result := x.Extract(context.Background(), "some scraped markdown", time.Now())

	require.False(t, result.Failed)
	require.Equal(t, "CLOSED", result.Extracted.Status)
	require.Equal(t, 2, gen.calls)
}

func TestExtract_ExhaustsRetriesAndReportsLLMError(t *testing.T) {
	gen := &stubGenerator{responses: []stubResponse{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	x := New(gen, "gemini-2.5-flash", testLogger())
	x.backoff = func(int) time.Duration { return 0 }

	result := x.Extract(context.Background(), "some scraped markdown", time.Now())

	require.True(t, result.Failed)
	require.Equal(t, ReasonLLMError, result.Reason)
	require.Equal(t, maxAttempts, gen.calls)
}
