package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo provides data access to the 'events' table.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Create inserts an event and populates the generated ID.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (organizer_id, title, venue, starts_at, ends_at, is_published)
               VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		e.OrganizerID, e.Title, e.Venue, e.StartsAt.UTC(), e.EndsAt.UTC(), e.IsPublished)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID returns an event by id, or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, organizer_id, title, venue, starts_at, ends_at, is_published, created_at, updated_at
               FROM events WHERE id = ?`
	var e model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Venue, &e.StartsAt, &e.EndsAt,
		&e.IsPublished, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// IsOwnedBy reports whether the event belongs to the given organizer.
// It returns ErrEventNotFound when the event does not exist.
func (r *EventRepo) IsOwnedBy(ctx context.Context, eventID, organizerID uint64) error {
	var ownerID uint64
	err := r.db.QueryRowContext(ctx, `SELECT organizer_id FROM events WHERE id = ?`, eventID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return err
	}
	if ownerID != organizerID {
		return ErrForbidden
	}
	return nil
}
