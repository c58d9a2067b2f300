package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quotewell/email-scheduler/internal/domain"
	"github.com/quotewell/email-scheduler/pkg/logger"
)

// ContactRepository implements domain.ContactRepository.
type ContactRepository struct {
	db     *sql.DB
	logger logger.Logger
}

// NewContactRepository creates a ContactRepository.
func NewContactRepository(db *sql.DB, log logger.Logger) *ContactRepository {
	return &ContactRepository{db: db, logger: log}
}

const contactColumns = "id, email, state, zip_code, birth_date, effective_date"

// ListEligible returns contacts with non-empty email, state and zip.
func (r *ContactRepository) ListEligible(ctx context.Context, limit int) ([]*domain.Contact, error) {
	query, args, err := psql.
		Select(contactColumns).
		From("contacts").
		Where("email IS NOT NULL AND email != ''").
		Where("state IS NOT NULL AND state != ''").
		Where("zip_code IS NOT NULL AND zip_code != ''").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*domain.Contact
	for rows.Next() {
		contact, err := r.scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contacts: %w", err)
	}
	return contacts, nil
}

// CountAll returns the total contact population.
func (r *ContactRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return count, nil
}

// GetByID fetches a single contact, or nil if absent.
func (r *ContactRepository) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	query, args, err := psql.
		Select(contactColumns).
		From("contacts").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	row := r.db.QueryRowContext(ctx, query, args...)
	contact, err := r.scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanContact reads one contact row. Malformed birth or effective
// dates are logged and treated as absent so one bad row cannot halt a
// pass.
func (r *ContactRepository) scanContact(row rowScanner) (*domain.Contact, error) {
	var contact domain.Contact
	var birthDate, effectiveDate sql.NullString

	if err := row.Scan(&contact.ID, &contact.Email, &contact.State,
		&contact.ZipCode, &birthDate, &effectiveDate); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	var err error
	if contact.BirthDate, err = parseNullDate(birthDate); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"contact_id": contact.ID,
			"birth_date": birthDate.String,
		}).Warn("Invalid birth date, ignoring")
		contact.BirthDate = nil
	}
	if contact.EffectiveDate, err = parseNullDate(effectiveDate); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"contact_id":     contact.ID,
			"effective_date": effectiveDate.String,
		}).Warn("Invalid effective date, ignoring")
		contact.EffectiveDate = nil
	}
	return &contact, nil
}
