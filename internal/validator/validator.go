// Package validator accepts an extracted pantry record and normalizes it
// into a canonical, always-storable candidate (spec §4.4). Validation never
// fails; it clamps.
package validator

import (
	"strings"
	"unicode"

	"github.com/ternarybob/quaero/internal/extractor"
	"github.com/ternarybob/quaero/internal/models"
)

// maxFieldLen bounds every free-text field to keep document size sane.
const maxFieldLen = 2048

const defaultEligibilityRule = "Open to all - no restrictions listed"

// Candidate is the places-derived half of a pantry record, supplied by the
// orchestrator alongside the extractor's output.
type Candidate struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	City             string
	State            string
	Point            models.Point
	Website          string
}

// Validate merges a places Candidate with an extractor.Extracted result into
// a canonical models.Pantry, applying the clamping rules in order.
// hasSourceURL indicates whether this record has a scraped source (affects
// the confidence floor for missing confidence).
func Validate(candidate Candidate, extracted extractor.Extracted, hasSourceURL bool) models.Pantry {
	confidence := clampConfidence(extracted.Confidence, hasSourceURL)
	status := coerceStatus(extracted.Status)
	eligibility := extracted.EligibilityRules
	if len(eligibility) == 0 {
		eligibility = []string{defaultEligibilityRule}
	}

	pantry := models.Pantry{
		PlaceID:          candidate.PlaceID,
		Name:             truncate(candidate.Name),
		Address:          truncate(candidate.FormattedAddress),
		City:             truncate(candidate.City),
		State:            truncate(candidate.State),
		Point:            candidate.Point,
		Status:           status,
		HoursNotes:       truncate(stripControl(extracted.HoursNotes)),
		HoursToday:       truncate(stripControl(extracted.HoursToday)),
		EligibilityRules: truncateAll(eligibility),
		IsIDRequired:     extracted.IsIDRequired,
		ResidencyReq:     truncate(stripControl(extracted.ResidencyReq)),
		SpecialNotes:     truncate(stripControl(extracted.SpecialNotes)),
		Confidence:       confidence,
		SourceURL:        candidate.Website,
	}
	return pantry
}

func clampConfidence(confidence int, hasSourceURL bool) int {
	if confidence == 0 {
		if hasSourceURL {
			return 5
		}
		return 3
	}
	if confidence < 1 {
		return 1
	}
	if confidence > 10 {
		return 10
	}
	return confidence
}

func coerceStatus(raw string) models.PantryStatus {
	return models.ParsePantryStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func truncate(s string) string {
	s = stripControl(s)
	if len(s) <= maxFieldLen {
		return s
	}
	return s[:maxFieldLen]
}

func truncateAll(rules []string) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = truncate(r)
	}
	return out
}
