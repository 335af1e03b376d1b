package models

import "time"

// ExtractedEvent is a candidate regatta produced by one extraction run.
// It lives only in memory (and the held-result store) until an operator
// confirms the import; nothing here is persisted directly.
type ExtractedEvent struct {
	Name        string `json:"name"`
	BoatClass   string `json:"boat_class,omitempty"`
	Location    string `json:"location"`
	LocationURL string `json:"location_url,omitempty"`
	StartDate   string `json:"start_date"` // ISO date (YYYY-MM-DD)
	EndDate     string `json:"end_date,omitempty"`
	Notes       string `json:"notes,omitempty"`
	DetailURL   string `json:"detail_url,omitempty"`

	// IsPast is derived during the run: start date before today.
	IsPast bool `json:"is_past"`

	// DuplicateOf is set when an existing regatta matches by
	// case-insensitive name and exact start date.
	DuplicateOf *DuplicateRef `json:"duplicate_of,omitempty"`

	// Documents and DiscoveryError are filled by the document-discovery
	// run. A discovery failure is recorded here per candidate and never
	// fails the batch.
	Documents      []DiscoveredDocument `json:"documents,omitempty"`
	DiscoveryError string               `json:"discovery_error,omitempty"`
}

// DuplicateRef identifies the stored regatta a candidate duplicates.
type DuplicateRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
}

// DiscoveredDocument is a document link found on a regatta's pages.
type DiscoveredDocument struct {
	DocType string `json:"doc_type"` // NOR|SI|WWW
	URL     string `json:"url"`
	Label   string `json:"label"`
}

// HeldImport is one completed run's output, parked server-side under a
// random token until the operator previews and confirms it. Read-once.
type HeldImport struct {
	Events    []ExtractedEvent `json:"events"`
	Year      int              `json:"year"`
	CreatedAt time.Time        `json:"created_at"`
}
