package model

import "time"

// EventState is the lifecycle state of an event. The set is closed: events
// are created PENDING_REVIEW, moved to PUBLISHED or CANCELED by moderation,
// and PUBLISHED is terminal.
type EventState string

const (
	EventPendingReview EventState = "PENDING_REVIEW"
	EventPublished     EventState = "PUBLISHED"
	EventCanceled      EventState = "CANCELED"
)

// Valid reports whether s is one of the known event states.
func (s EventState) Valid() bool {
	switch s {
	case EventPendingReview, EventPublished, EventCanceled:
		return true
	}
	return false
}

// Editable reports whether an event in this state accepts field edits.
// Published events are immutable except through moderation actions.
func (s EventState) Editable() bool {
	return s == EventPendingReview || s == EventCanceled
}

// RequestStatus is the lifecycle status of a participation request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestConfirmed RequestStatus = "CONFIRMED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCanceled  RequestStatus = "CANCELED"
)

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestConfirmed, RequestRejected, RequestCanceled:
		return true
	}
	return false
}

// Location is a geographic point attached to an event.
type Location struct {
	Lat float64 `db:"lat" json:"lat"`
	Lon float64 `db:"lon" json:"lon"`
}

type Event struct {
	ID                int64      `db:"id" json:"id"`
	Title             string     `db:"title" json:"title"`
	Annotation        string     `db:"annotation" json:"annotation"`
	Description       string     `db:"description" json:"description"`
	CategoryID        int64      `db:"category_id" json:"category_id"`
	InitiatorID       int64      `db:"initiator_id" json:"initiator_id"`
	Location          Location   `db:"location" json:"location"`
	Paid              bool       `db:"paid" json:"paid"`
	ParticipantLimit  int        `db:"participant_limit" json:"participant_limit"`
	RequestModeration bool       `db:"request_moderation" json:"request_moderation"`
	EventDate         time.Time  `db:"event_date" json:"event_date"`
	CreatedOn         time.Time  `db:"created_on" json:"created_on"`
	PublishedOn       *time.Time `db:"published_on" json:"published_on,omitempty"`
	State             EventState `db:"state" json:"state"`
}

// Unlimited reports whether the event has no participant cap.
func (e *Event) Unlimited() bool {
	return e.ParticipantLimit == 0
}

type ParticipationRequest struct {
	ID          int64         `db:"id" json:"id"`
	EventID     int64         `db:"event_id" json:"event_id"`
	RequesterID int64         `db:"requester_id" json:"requester_id"`
	Created     time.Time     `db:"created" json:"created"`
	Status      RequestStatus `db:"status" json:"status"`
}

// User is a directory record referenced by events and requests. Its
// lifecycle is owned elsewhere; this service only reads it.
type User struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// Category is a directory record referenced by events.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
