package places

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/interfaces"
	"github.com/ternarybob/quaero/internal/models"
	"golang.org/x/time/rate"
)

const (
	nearbySearchURL         = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	placeDetailsURL         = "https://maps.googleapis.com/maps/api/place/details/json"
	defaultFingerprintRound = 3
)

// Client implements interfaces.PlacesClient against the Google Places
// Nearby Search / Place Details REST endpoints. There is no
// official Go SDK for the Places web API, so this is core plumbing rather
// than a wrapped vendor dependency.
type Client struct {
	config      *common.PlacesAPIConfig
	cache       interfaces.PlacesCacheStorage
	cacheTTL    time.Duration
	latLngRound int
	logger      arbor.ILogger
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

var _ interfaces.PlacesClient = (*Client)(nil)

// NewClient builds a Places Client. cacheTTL comes from
// common.DiscoveryConfig.PlacesCacheTTL, latLngRound from
// common.DiscoveryConfig.PlacesLatLngRound — the decimal precision the
// fingerprint rounds lat/lng to, so two nearby queries a few meters apart
// still share a cache entry. A non-positive value falls back to
// defaultFingerprintRound.
func NewClient(
	config *common.PlacesAPIConfig,
	cacheTTL time.Duration,
	latLngRound int,
	cache interfaces.PlacesCacheStorage,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *Client {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "google-places", config.APIKey)
	if err != nil {
		apiKey = config.APIKey
		logger.Warn().Err(err).Msg("failed to resolve Places API key from KV store, using config value")
	}

	interval := config.RateLimit
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	if latLngRound <= 0 {
		latLngRound = defaultFingerprintRound
	}

	return &Client{
		config:      config,
		cache:       cache,
		cacheTTL:    cacheTTL,
		latLngRound: latLngRound,
		logger:      logger,
		apiKey:      apiKey,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// FindCandidates implements interfaces.PlacesClient (spec §4.1).
func (c *Client) FindCandidates(ctx context.Context, center models.Point, radiusMeters int, variants []string) (models.CandidateSet, error) {
	fingerprint := c.computeFingerprint(center, radiusMeters, variants)

	if entry, found, err := c.cache.Get(ctx, fingerprint); err == nil && found {
		if !entry.Expired(time.Now(), c.cacheTTL) {
			c.logger.Debug().Str("fingerprint", fingerprint).Msg("places cache hit")
			return models.CandidateSet{Fingerprint: fingerprint, Candidates: entry.Candidates}, nil
		}
	}

	results, err := c.fanOutVariants(ctx, center, radiusMeters, variants)
	if err != nil {
		return models.CandidateSet{}, err
	}

	candidates := c.dedupe(results)
	c.fillMissingWebsites(ctx, candidates)

	set := models.CandidateSet{Fingerprint: fingerprint, Candidates: candidates}

	if err := c.cache.Put(ctx, models.PlacesCacheEntry{
		Fingerprint: fingerprint,
		Candidates:  candidates,
		CreatedAt:   time.Now(),
	}); err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("failed to persist places cache entry")
	}

	return set, nil
}

// fanOutVariants issues one nearby-search call per variant in parallel,
// fail-soft: a single variant's failure is logged, not fatal, unless every
// variant fails.
func (c *Client) fanOutVariants(ctx context.Context, center models.Point, radiusMeters int, variants []string) ([]placeResult, error) {
	type variantResult struct {
		results []placeResult
		err     error
	}

	outcomes := make([]variantResult, len(variants))
	var wg sync.WaitGroup
	for i, variant := range variants {
		wg.Add(1)
		go func(i int, variant string) {
			defer wg.Done()
			results, err := c.nearbySearch(ctx, center, radiusMeters, variant)
			outcomes[i] = variantResult{results: results, err: err}
		}(i, variant)
	}
	wg.Wait()

	var merged []placeResult
	failures := 0
	for i, outcome := range outcomes {
		if outcome.err != nil {
			failures++
			c.logger.Warn().Err(outcome.err).Str("variant", variants[i]).Msg("places variant search failed")
			continue
		}
		merged = append(merged, outcome.results...)
	}

	if failures == len(variants) && len(variants) > 0 {
		return nil, fmt.Errorf("upstream_unavailable: all %d places variant searches failed", len(variants))
	}

	return merged, nil
}

func (c *Client) dedupe(results []placeResult) []models.Candidate {
	seen := make(map[string]models.Candidate, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		if r.PlaceID == "" {
			continue
		}
		if _, ok := seen[r.PlaceID]; ok {
			continue
		}
		cand := models.Candidate{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Website:          r.Website,
		}
		if r.Geometry != nil && r.Geometry.Location != nil {
			cand.Lat = r.Geometry.Location.Lat
			cand.Lng = r.Geometry.Location.Lng
		}
		seen[r.PlaceID] = cand
		order = append(order, r.PlaceID)
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, seen[id])
	}
	return candidates
}

// fillMissingWebsites issues a best-effort Place Details lookup for each
// candidate missing a website. Failures are tolerated per-candidate.
func (c *Client) fillMissingWebsites(ctx context.Context, candidates []models.Candidate) {
	for i := range candidates {
		if candidates[i].Website != "" {
			continue
		}
		website, err := c.placeDetails(ctx, candidates[i].PlaceID)
		if err != nil {
			c.logger.Debug().Err(err).Str("place_id", candidates[i].PlaceID).Msg("place details fallback failed")
			continue
		}
		candidates[i].Website = website
	}
}

func (c *Client) nearbySearch(ctx context.Context, center models.Point, radiusMeters int, keyword string) ([]placeResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", center.Lat, center.Lng))
	params.Set("radius", fmt.Sprintf("%d", radiusMeters))
	params.Set("keyword", keyword)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nearbySearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nearby search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nearby search returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp nearbySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode nearby search response: %w", err)
	}
	if apiResp.Status != "OK" && apiResp.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places API error: %s - %s", apiResp.Status, apiResp.ErrorMessage)
	}

	return apiResp.Results, nil
}

func (c *Client) placeDetails(ctx context.Context, placeID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "website")
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, placeDetailsURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("place details request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("place details returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp placeDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode place details response: %w", err)
	}
	if apiResp.Status != "OK" {
		return "", fmt.Errorf("places API error: %s - %s", apiResp.Status, apiResp.ErrorMessage)
	}

	return apiResp.Result.Website, nil
}

// computeFingerprint hashes (round(lat,N), round(lng,N), radius, sorted
// variants) so nearby queries with the same variant set share a cache
// entry. N is c.latLngRound (common.DiscoveryConfig.PlacesLatLngRound).
func (c *Client) computeFingerprint(center models.Point, radiusMeters int, variants []string) string {
	rounded := func(v float64) float64 {
		scale := math.Pow(10, float64(c.latLngRound))
		return math.Round(v*scale) / scale
	}

	sorted := make([]string, len(variants))
	copy(sorted, variants)
	sort.Strings(sorted)

	canonical := fmt.Sprintf("%.*f,%.*f,%d,%s", c.latLngRound, rounded(center.Lat), c.latLngRound, rounded(center.Lng), radiusMeters, strings.Join(sorted, "|"))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
