package services

import (
	"context"
	"strings"
	"testing"

	"race-crew-network/internal/models"
)

// memoryRegattas is a slice-backed RegattaFinder matching the store's
// case-insensitive name + exact date contract.
type memoryRegattas struct {
	regattas []models.Regatta
}

func (m *memoryRegattas) FindRegattaByNameAndDate(_ context.Context, name, startDate string) (*models.Regatta, error) {
	for i := range m.regattas {
		if strings.EqualFold(m.regattas[i].Name, name) && m.regattas[i].StartDate == startDate {
			return &m.regattas[i], nil
		}
	}
	return nil, nil
}

func TestDuplicateDetector(t *testing.T) {
	store := &memoryRegattas{regattas: []models.Regatta{
		{
			ID:        "reg_abc12345",
			Name:      "Spring Regatta",
			Location:  "Port YC",
			StartDate: "2026-03-15",
		},
	}}
	detector := NewDuplicateDetector(store)

	testCases := []struct {
		name      string
		candidate string
		startDate string
		wantDup   bool
	}{
		{"exact match", "Spring Regatta", "2026-03-15", true},
		{"case-insensitive match", "SPRING REGATTA", "2026-03-15", true},
		{"lowercase match", "spring regatta", "2026-03-15", true},
		{"one-day shift clears the flag", "Spring Regatta", "2026-03-16", false},
		{"different name", "Fall Regatta", "2026-03-15", false},
		{"empty name", "", "2026-03-15", false},
		{"empty date", "Spring Regatta", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := detector.Check(context.Background(), tc.candidate, tc.startDate)
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if (ref != nil) != tc.wantDup {
				t.Errorf("Check(%q, %q) = %+v, wantDup %v", tc.candidate, tc.startDate, ref, tc.wantDup)
			}
			if ref != nil && ref.ID != "reg_abc12345" {
				t.Errorf("duplicate ref points at %q, want reg_abc12345", ref.ID)
			}
		})
	}
}
