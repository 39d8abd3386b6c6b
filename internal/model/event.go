package model

import "time"

// Event represents a row in the `events` table.  An event is the
// top-level unit an organizer manages; ticket categories and flash
// sales always belong to exactly one event.
//
// Fields:
//
//	ID          – primary key identifier.
//	OrganizerID – user who created and moderates the event.
//	Title       – display title shown on tickets and at the gate.
//	Venue       – free-form venue description.
//	StartsAt    – when the event begins (UTC).
//	EndsAt      – when the event ends (UTC).
//	IsPublished – whether the event is visible to customers.
//	CreatedAt   – timestamp of creation.
//	UpdatedAt   – timestamp of last update.
type Event struct {
	ID          uint64    // events.id
	OrganizerID uint64    // events.organizer_id
	Title       string    // events.title
	Venue       string    // events.venue
	StartsAt    time.Time // events.starts_at
	EndsAt      time.Time // events.ends_at
	IsPublished bool      // events.is_published
	CreatedAt   time.Time // events.created_at
	UpdatedAt   time.Time // events.updated_at
}
