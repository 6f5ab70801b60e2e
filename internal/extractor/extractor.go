package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/interfaces"
)

// Reason classifies why an extraction attempt produced no usable record.
type Reason string

const (
	ReasonLLMError     Reason = "llm_error"
	ReasonInvalidJSON  Reason = "invalid_json"
	ReasonEmptyResponse Reason = "empty_response"
)

// Extracted is the partial pantry record produced by the LLM, before
// validation/clamping (spec §4.3).
type Extracted struct {
	Status           string   `json:"status"`
	HoursNotes       string   `json:"hours_notes"`
	HoursToday       string   `json:"hours_today"`
	EligibilityRules []string `json:"eligibility_rules"`
	IsIDRequired     bool     `json:"is_id_required"`
	ResidencyReq     string   `json:"residency_req"`
	SpecialNotes     string   `json:"special_notes"`
	Confidence       int      `json:"confidence"`
}

// Result is the outcome of an Extract call: exactly one of Extracted or
// Failed is populated.
type Result struct {
	Extracted Extracted
	Failed    bool
	Reason    Reason
	Detail    string
}

const maxAttempts = 3

// Extractor turns scraped markdown into a candidate Pantry record by
// prompting the configured LLM. Stateless and safe under concurrent use.
type Extractor struct {
	generator interfaces.ContentGenerator
	model     string
	logger    arbor.ILogger
	backoff   func(attempt int) time.Duration
}

// New builds an Extractor against the given ContentGenerator (normally
// llm.ProviderFactory) and the configured default model.
func New(generator interfaces.ContentGenerator, model string, logger arbor.ILogger) *Extractor {
	return &Extractor{generator: generator, model: model, logger: logger, backoff: backoff}
}

// Extract prompts the LLM to summarize markdown into a pantry record as of
// today. Empty markdown short-circuits to the documented "unknown" defaults
// without a vendor call (spec §4.3).
func (x *Extractor) Extract(ctx context.Context, markdown string, today time.Time) Result {
	if strings.TrimSpace(markdown) == "" {
		return Result{Extracted: emptySourceDefaults()}
	}

	req := &interfaces.ContentRequest{
		Messages: []interfaces.ContentMessage{
			{Role: "user", Content: buildPrompt(markdown, today)},
		},
		Model:             x.model,
		Temperature:       0.2,
		MaxTokens:         1024,
		SystemInstruction: systemInstruction,
		OutputSchema:      responseSchema,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Result{Failed: true, Reason: ReasonLLMError, Detail: ctx.Err().Error()}
		}

		resp, err := x.generator.GenerateContent(ctx, req)
		if err != nil {
			lastErr = err
			x.logger.Debug().Err(err).Int("attempt", attempt).Msg("extractor LLM call failed, retrying")
			select {
			case <-ctx.Done():
				return Result{Failed: true, Reason: ReasonLLMError, Detail: ctx.Err().Error()}
			case <-time.After(x.backoff(attempt)):
			}
			continue
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return Result{Failed: true, Reason: ReasonEmptyResponse, Detail: "LLM returned an empty response"}
		}

		extracted, err := parseExtracted(text)
		if err != nil {
			return Result{Failed: true, Reason: ReasonInvalidJSON, Detail: err.Error()}
		}
		return Result{Extracted: extracted}
	}

	return Result{Failed: true, Reason: ReasonLLMError, Detail: fmt.Sprintf("exhausted %d attempts: %v", maxAttempts, lastErr)}
}

func emptySourceDefaults() Extracted {
	return Extracted{
		Status:           "UNKNOWN",
		EligibilityRules: []string{"Open to all - no restrictions listed"},
		IsIDRequired:     false,
		Confidence:       1,
	}
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// parseExtracted parses the LLM's response text as the extraction schema,
// tolerating surrounding prose by extracting the first balanced {...} block
// (spec §9).
func parseExtracted(text string) (Extracted, error) {
	block, err := firstBalancedObject(text)
	if err != nil {
		return Extracted{}, err
	}

	var extracted Extracted
	if err := json.Unmarshal([]byte(block), &extracted); err != nil {
		return Extracted{}, fmt.Errorf("failed to parse extraction JSON: %w", err)
	}
	return extracted, nil
}

// firstBalancedObject scans text for the first top-level balanced {...}
// block, ignoring braces inside string literals.
func firstBalancedObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}
