// Package models holds the data types shared across the discovery core:
// pantries, places candidates, the places cache, jobs, and events.
package models

import "time"

// PantryStatus is the normalized operating status of a pantry.
type PantryStatus string

const (
	StatusOpen     PantryStatus = "OPEN"
	StatusClosed   PantryStatus = "CLOSED"
	StatusWaitlist PantryStatus = "WAITLIST"
	StatusUnknown  PantryStatus = "UNKNOWN"
)

// ParsePantryStatus coerces an arbitrary string to a known PantryStatus,
// falling back to StatusUnknown for anything unrecognized.
func ParsePantryStatus(s string) PantryStatus {
	switch PantryStatus(s) {
	case StatusOpen, StatusClosed, StatusWaitlist, StatusUnknown:
		return PantryStatus(s)
	default:
		return StatusUnknown
	}
}

// Point is a (longitude, latitude) pair, in that order, matching the
// store's geospatial indexing convention.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Pantry is the canonical enriched record persisted by the store.
type Pantry struct {
	ID               string       `json:"id" badgerholdKey:"ID"`
	PlaceID          string       `json:"place_id" badgerholdUnique:"PlaceID"`
	Name             string       `json:"name"`
	Address          string       `json:"address"`
	City             string       `json:"city" badgerholdIndex:"City"`
	State            string       `json:"state"`
	Point            Point        `json:"point"`
	Status           PantryStatus `json:"status"`
	HoursNotes       string       `json:"hours_notes,omitempty"`
	HoursToday       string       `json:"hours_today,omitempty"`
	EligibilityRules []string     `json:"eligibility_rules"`
	IsIDRequired     bool         `json:"is_id_required"`
	ResidencyReq     string       `json:"residency_req,omitempty"`
	SpecialNotes     string       `json:"special_notes,omitempty"`
	Confidence       int          `json:"confidence"`
	SourceURL        string       `json:"source_url,omitempty"`
	ScrapeMethod     string       `json:"scrape_method,omitempty"`
	ScrapedAt        time.Time    `json:"scraped_at,omitempty"`
	LastUpdated      time.Time    `json:"last_updated"`
}

// Merge overlays non-zero/non-empty fields of other onto a copy of p,
// never overwriting an existing value with an empty/zero one. Used by the
// orchestrator's upsert to avoid regressing a record that already has more
// specific data than a freshly-ingested PlacesOnly pass would supply.
func (p Pantry) Merge(other Pantry) Pantry {
	merged := p
	if other.Name != "" {
		merged.Name = other.Name
	}
	if other.Address != "" {
		merged.Address = other.Address
	}
	if other.City != "" {
		merged.City = other.City
	}
	if other.State != "" {
		merged.State = other.State
	}
	if other.Point.Lat != 0 || other.Point.Lng != 0 {
		merged.Point = other.Point
	}
	if other.Status != "" && other.Status != StatusUnknown {
		merged.Status = other.Status
	}
	if other.HoursNotes != "" {
		merged.HoursNotes = other.HoursNotes
	}
	if other.HoursToday != "" {
		merged.HoursToday = other.HoursToday
	}
	if len(other.EligibilityRules) > 0 {
		merged.EligibilityRules = other.EligibilityRules
	}
	merged.IsIDRequired = other.IsIDRequired
	if other.ResidencyReq != "" {
		merged.ResidencyReq = other.ResidencyReq
	}
	if other.SpecialNotes != "" {
		merged.SpecialNotes = other.SpecialNotes
	}
	if other.Confidence > 0 {
		merged.Confidence = other.Confidence
	}
	if other.SourceURL != "" {
		merged.SourceURL = other.SourceURL
	}
	if other.ScrapeMethod != "" {
		merged.ScrapeMethod = other.ScrapeMethod
	}
	if !other.ScrapedAt.IsZero() {
		merged.ScrapedAt = other.ScrapedAt
	}
	merged.LastUpdated = other.LastUpdated
	return merged
}
