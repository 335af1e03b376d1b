package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"race-crew-network/internal/models"
)

// PlatformResolver recognizes URLs belonging to a regatta-management
// platform and fetches that platform's own document records directly,
// bypassing model extraction. Resolvers are best-effort: Documents returns
// an empty slice on any failure.
type PlatformResolver interface {
	// Recognize extracts the platform's regatta identifier from a URL,
	// or returns "" when the URL does not belong to the platform.
	Recognize(rawURL string) string

	// Documents queries the platform API for the regatta's active,
	// non-archived documents.
	Documents(ctx context.Context, regattaID string) []models.DiscoveredDocument
}

// ClubspotResolver resolves theclubspot.com regatta pages through the
// platform's query API, a higher-trust fast path than extraction.
type ClubspotResolver struct {
	httpClient *http.Client
	baseURL    string
}

const (
	clubspotHost  = "theclubspot.com"
	clubspotAppID = "myclubspot2017"
)

// NewClubspotResolver creates a resolver against the live platform.
func NewClubspotResolver() *ClubspotResolver {
	return &ClubspotResolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://" + clubspotHost,
	}
}

// NewClubspotResolverWithBaseURL points the resolver at a stub server.
func NewClubspotResolverWithBaseURL(baseURL string) *ClubspotResolver {
	r := NewClubspotResolver()
	r.baseURL = baseURL
	return r
}

// Recognize matches https://theclubspot.com/regatta/<id>[/...] and returns
// <id>; any other shape returns "".
func (r *ClubspotResolver) Recognize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host != clubspotHost {
		return ""
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "regatta" || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// clubspotDocument is one row of the platform's document query response.
// The active and archived flags are not present on every row; a missing
// flag means the document counts as live.
type clubspotDocument struct {
	Type     string `json:"type"`
	URL      string `json:"URL"`
	Active   *bool  `json:"active"`
	Archived *bool  `json:"archived"`
}

func (d clubspotDocument) live() bool {
	if d.Archived != nil && *d.Archived {
		return false
	}
	if d.Active != nil && !*d.Active {
		return false
	}
	return true
}

// Documents queries the platform for a regatta's documents. The platform's
// type codes (nor, si, case-insensitive) map to the domain codes with fixed
// labels; unknown types, missing URLs, and archived or inactive rows are
// dropped. Any request or decode failure yields an empty result, never an
// error.
func (r *ClubspotResolver) Documents(ctx context.Context, regattaID string) []models.DiscoveredDocument {
	endpoint := fmt.Sprintf("%s/query/documents?regatta=%s", r.baseURL, url.QueryEscape(regattaID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "application/json")
	// The platform's Parse backend rejects requests without its app ID.
	req.Header.Set("X-Parse-Application-Id", clubspotAppID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("clubspot query failed for regatta %s: %v", regattaID, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("clubspot query for regatta %s returned status %d", regattaID, resp.StatusCode)
		return nil
	}

	var payload struct {
		Results []clubspotDocument `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("clubspot response decode failed for regatta %s: %v", regattaID, err)
		return nil
	}

	var docs []models.DiscoveredDocument
	for _, d := range payload.Results {
		if d.URL == "" || !d.live() {
			continue
		}
		switch strings.ToLower(d.Type) {
		case "nor":
			docs = append(docs, models.DiscoveredDocument{
				DocType: models.DocTypeNOR,
				URL:     d.URL,
				Label:   "Notice of Race",
			})
		case "si":
			docs = append(docs, models.DiscoveredDocument{
				DocType: models.DocTypeSI,
				URL:     d.URL,
				Label:   "Sailing Instructions",
			})
		}
	}
	return docs
}
