package domain

import (
	"context"
	"time"
)

// Contact is an insurance contact eligible for outbound scheduling.
// BirthDate and EffectiveDate may be nil; Email, State and ZipCode are
// guaranteed non-empty by the eligibility query.
type Contact struct {
	ID            int64
	Email         string
	State         string
	ZipCode       string
	BirthDate     *time.Time
	EffectiveDate *time.Time
}

// ContactRepository streams eligible contacts from storage.
type ContactRepository interface {
	// ListEligible returns up to limit contacts with non-empty email,
	// state and zip code.
	ListEligible(ctx context.Context, limit int) ([]*Contact, error)

	// CountAll returns the total contact population, used to size the
	// organisational daily cap.
	CountAll(ctx context.Context) (int, error)

	// GetByID fetches a single contact, or nil if it does not exist.
	GetByID(ctx context.Context, id int64) (*Contact, error)
}
