package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Regatta is a persisted club event on the racing calendar.
type Regatta struct {
	ID          string    `json:"id" dynamodbav:"ID"`
	Name        string    `json:"name" dynamodbav:"Name"`
	BoatClass   string    `json:"boat_class" dynamodbav:"BoatClass"`
	Location    string    `json:"location" dynamodbav:"Location"`
	LocationURL string    `json:"location_url,omitempty" dynamodbav:"LocationURL,omitempty"`
	StartDate   string    `json:"start_date" dynamodbav:"StartDate"` // ISO date (YYYY-MM-DD)
	EndDate     string    `json:"end_date,omitempty" dynamodbav:"EndDate,omitempty"`
	Notes       string    `json:"notes,omitempty" dynamodbav:"Notes,omitempty"`
	CreatedBy   string    `json:"created_by" dynamodbav:"CreatedBy"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"UpdatedAt"`

	// NameLower is the GSI hash key for the case-insensitive duplicate lookup.
	NameLower string `json:"-" dynamodbav:"NameLower"`
}

// Document is a persisted attachment on a regatta: a Notice of Race,
// Sailing Instructions, or a link to the regatta's own website.
type Document struct {
	ID               string    `json:"id" dynamodbav:"ID"`
	RegattaID        string    `json:"regatta_id" dynamodbav:"RegattaID"`
	DocType          string    `json:"doc_type" dynamodbav:"DocType"` // NOR|SI|WWW
	Label            string    `json:"label,omitempty" dynamodbav:"Label,omitempty"`
	URL              string    `json:"url,omitempty" dynamodbav:"URL,omitempty"`
	OriginalFilename string    `json:"original_filename,omitempty" dynamodbav:"OriginalFilename,omitempty"`
	StoredFilename   string    `json:"stored_filename,omitempty" dynamodbav:"StoredFilename,omitempty"`
	UploadedBy       string    `json:"uploaded_by" dynamodbav:"UploadedBy"`
	UploadedAt       time.Time `json:"uploaded_at" dynamodbav:"UploadedAt"`
}

// Document type codes. Sorted display order is the code order: NOR, SI, WWW.
const (
	DocTypeNOR = "NOR"
	DocTypeSI  = "SI"
	DocTypeWWW = "WWW"
)

// ValidateDocType checks if the document type code is valid
func ValidateDocType(docType string) bool {
	switch docType {
	case DocTypeNOR, DocTypeSI, DocTypeWWW:
		return true
	}
	return false
}

// GenerateRegattaID creates a deterministic ID for a regatta from its core attributes
func GenerateRegattaID(name, startDate, location string) string {
	normalizedName := strings.ToLower(strings.TrimSpace(name))
	normalizedDate := strings.TrimSpace(startDate)
	normalizedLocation := strings.ToLower(strings.TrimSpace(location))

	input := fmt.Sprintf("%s|%s|%s", normalizedName, normalizedDate, normalizedLocation)
	hash := sha256.Sum256([]byte(input))

	return "reg_" + hex.EncodeToString(hash[:])[:8]
}

// IsValidURL performs basic URL validation
func IsValidURL(url string) bool {
	if url == "" {
		return false
	}
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// ParseISODate parses a YYYY-MM-DD date string
func ParseISODate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}
