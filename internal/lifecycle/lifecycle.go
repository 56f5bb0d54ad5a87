// Package lifecycle owns the event state machine: creation defaults, the
// draft → review → published/canceled transitions, and the time-window
// guards for user and admin edits. All functions are pure over an injected
// clock so the divergent rule variants stay in one place.
package lifecycle

import (
	"time"

	"afisha/internal/apperr"
	"afisha/internal/model"
)

// Lead times before the event date. A user touching an event needs at least
// two hours of headroom, an admin one hour. Creation uses the user window.
const (
	UserEditWindow  = 2 * time.Hour
	AdminEditWindow = 1 * time.Hour
)

// StateAction is a moderation verb carried in an update request.
type StateAction string

const (
	ActionSendToReview StateAction = "SEND_TO_REVIEW"
	ActionCancelReview StateAction = "CANCEL_REVIEW"
	ActionPublish      StateAction = "PUBLISH_EVENT"
	ActionReject       StateAction = "REJECT_EVENT"
)

// NewEventSpec carries the fields of a creation request. Optional flags are
// pointers so that absent values resolve to the documented defaults here,
// not in the mapping layers.
type NewEventSpec struct {
	Title             string
	Annotation        string
	Description       string
	CategoryID        int64
	EventDate         time.Time
	Location          model.Location
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool
}

// Patch is a partial update of an event. Nil fields are left untouched.
type Patch struct {
	Title             *string
	Annotation        *string
	Description       *string
	CategoryID        *int64
	EventDate         *time.Time
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool
	Location          *model.Location
	StateAction       StateAction
}

func (p Patch) hasFieldEdits() bool {
	return p.Title != nil || p.Annotation != nil || p.Description != nil ||
		p.CategoryID != nil || p.EventDate != nil || p.Paid != nil ||
		p.ParticipantLimit != nil || p.RequestModeration != nil || p.Location != nil
}

// New builds an event from a creation spec. Defaults: paid=false, limit=0
// (unlimited), moderation=true. The event date must be at least two hours
// ahead; a shorter lead time is a validation error, not a conflict, because
// no state exists yet to conflict with.
func New(initiatorID int64, spec NewEventSpec, now time.Time) (model.Event, error) {
	if spec.EventDate.Before(now.Add(UserEditWindow)) {
		return model.Event{}, apperr.Validation("event date must be at least 2 hours from now")
	}

	ev := model.Event{
		Title:             spec.Title,
		Annotation:        spec.Annotation,
		Description:       spec.Description,
		CategoryID:        spec.CategoryID,
		InitiatorID:       initiatorID,
		Location:          spec.Location,
		EventDate:         spec.EventDate,
		CreatedOn:         now,
		State:             model.EventPendingReview,
		Paid:              false,
		ParticipantLimit:  0,
		RequestModeration: true,
	}
	if spec.Paid != nil {
		ev.Paid = *spec.Paid
	}
	if spec.ParticipantLimit != nil {
		if *spec.ParticipantLimit < 0 {
			return model.Event{}, apperr.Validation("participant limit must not be negative")
		}
		ev.ParticipantLimit = *spec.ParticipantLimit
	}
	if spec.RequestModeration != nil {
		ev.RequestModeration = *spec.RequestModeration
	}
	return ev, nil
}

// ApplyUserUpdate mutates ev in place with a patch issued by the initiator.
// The 2h window is checked against the event date as it stands before the
// patch; the patched date itself is validated separately.
func ApplyUserUpdate(ev *model.Event, actorID int64, patch Patch, now time.Time) error {
	if ev.InitiatorID != actorID {
		return apperr.Forbidden("user %d is not the initiator of event %d", actorID, ev.ID)
	}
	if !ev.State.Editable() {
		return apperr.Conflict("only pending or canceled events can be updated")
	}
	if ev.EventDate.Before(now.Add(UserEditWindow)) {
		return apperr.Conflict("event starts in less than 2 hours")
	}
	if err := applyFields(ev, patch, UserEditWindow, now); err != nil {
		return err
	}

	switch patch.StateAction {
	case "":
	case ActionSendToReview:
		ev.State = model.EventPendingReview
	case ActionCancelReview:
		ev.State = model.EventCanceled
	default:
		return apperr.Validation("unknown state action: %s", patch.StateAction)
	}
	return nil
}

// ApplyAdminUpdate mutates ev in place with an administrator patch. Publish
// and reject have their own state preconditions; field edits obey the same
// editability rule as user edits but with the 1h admin window.
func ApplyAdminUpdate(ev *model.Event, patch Patch, now time.Time) error {
	switch patch.StateAction {
	case "", ActionPublish, ActionReject:
	default:
		return apperr.Validation("unknown state action: %s", patch.StateAction)
	}

	if patch.hasFieldEdits() {
		if !ev.State.Editable() {
			return apperr.Conflict("only pending or canceled events can be updated")
		}
		if ev.EventDate.Before(now.Add(AdminEditWindow)) {
			return apperr.Conflict("event starts in less than 1 hour")
		}
		if err := applyFields(ev, patch, AdminEditWindow, now); err != nil {
			return err
		}
	}

	switch patch.StateAction {
	case ActionPublish:
		if ev.State != model.EventPendingReview {
			return apperr.Conflict("cannot publish event in state %s", ev.State)
		}
		if ev.EventDate.Before(now.Add(AdminEditWindow)) {
			return apperr.Conflict("event starts in less than 1 hour")
		}
		ev.State = model.EventPublished
		published := now
		ev.PublishedOn = &published
	case ActionReject:
		if ev.State == model.EventPublished {
			return apperr.Conflict("cannot reject already published event")
		}
		ev.State = model.EventCanceled
	}
	return nil
}

func applyFields(ev *model.Event, patch Patch, window time.Duration, now time.Time) error {
	if patch.EventDate != nil && patch.EventDate.Before(now.Add(window)) {
		return apperr.Validation("event date must be at least %v from now", window)
	}
	if patch.ParticipantLimit != nil && *patch.ParticipantLimit < 0 {
		return apperr.Validation("participant limit must not be negative")
	}

	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	if patch.Annotation != nil {
		ev.Annotation = *patch.Annotation
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.CategoryID != nil {
		ev.CategoryID = *patch.CategoryID
	}
	if patch.EventDate != nil {
		ev.EventDate = *patch.EventDate
	}
	if patch.Paid != nil {
		ev.Paid = *patch.Paid
	}
	if patch.ParticipantLimit != nil {
		ev.ParticipantLimit = *patch.ParticipantLimit
	}
	if patch.RequestModeration != nil {
		ev.RequestModeration = *patch.RequestModeration
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	return nil
}
