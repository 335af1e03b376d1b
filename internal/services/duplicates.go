package services

import (
	"context"

	"race-crew-network/internal/models"
)

// RegattaFinder is the read side of the persistence collaborator used by
// the duplicate check.
type RegattaFinder interface {
	// FindRegattaByNameAndDate matches by case-insensitive name and exact
	// start date, returning nil when no regatta matches.
	FindRegattaByNameAndDate(ctx context.Context, name, startDate string) (*models.Regatta, error)
}

// DuplicateDetector flags candidates that already exist on the calendar.
// Advisory only: duplicates are flagged during extraction and skipped at
// confirmation, never blocked by a uniqueness constraint.
type DuplicateDetector struct {
	store RegattaFinder
}

func NewDuplicateDetector(store RegattaFinder) *DuplicateDetector {
	return &DuplicateDetector{store: store}
}

// Check returns a reference to the stored regatta a candidate duplicates,
// or nil. Pure read, no side effects.
func (d *DuplicateDetector) Check(ctx context.Context, name, startDate string) (*models.DuplicateRef, error) {
	if name == "" || startDate == "" {
		return nil, nil
	}

	existing, err := d.store.FindRegattaByNameAndDate(ctx, name, startDate)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	return &models.DuplicateRef{
		ID:        existing.ID,
		Name:      existing.Name,
		Location:  existing.Location,
		StartDate: existing.StartDate,
	}, nil
}
