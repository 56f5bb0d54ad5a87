// Package admission owns the participation-request state machine: initial
// status on submit, owner cancellation, and batch confirm/reject planning
// against a capacity snapshot.
//
// Everything here is pure. The capacity snapshot (the confirmed count) must
// be read under the same lock that later applies the plan — the repository
// takes the event row lock, reads the count, calls into this package and
// writes the result inside one transaction. Calling these functions with a
// stale count reintroduces the count-then-act race.
package admission

import (
	"context"
	"sort"

	"afisha/internal/apperr"
	"afisha/internal/model"
)

// Decision is the organizer's verdict for a batch of pending requests.
type Decision string

const (
	DecisionConfirm Decision = "CONFIRMED"
	DecisionReject  Decision = "REJECTED"
)

func (d Decision) Valid() bool {
	return d == DecisionConfirm || d == DecisionReject
}

// CapacityReader is the ledger: the authoritative count of CONFIRMED
// requests per event, always recomputed from request state.
type CapacityReader interface {
	ConfirmedCount(ctx context.Context, eventID int64) (int, error)
}

// InitialStatus decides the status a new request is born with. Unlimited
// events and events without moderation confirm immediately; everything else
// waits for the organizer.
func InitialStatus(ev *model.Event) model.RequestStatus {
	if ev.Unlimited() || !ev.RequestModeration {
		return model.RequestConfirmed
	}
	return model.RequestPending
}

// ValidateSubmit checks whether requester may submit a request for ev.
// hasActive reports an existing non-canceled request for the same pair;
// confirmed is the ledger snapshot taken under the event lock.
func ValidateSubmit(ev *model.Event, requesterID int64, hasActive bool, confirmed int) error {
	if ev.InitiatorID == requesterID {
		return apperr.Conflict("initiator cannot request participation in their own event")
	}
	if ev.State != model.EventPublished {
		return apperr.Conflict("cannot request participation in an unpublished event")
	}
	if hasActive {
		return apperr.Conflict("participation request already exists for this event")
	}
	if !ev.Unlimited() && confirmed >= ev.ParticipantLimit {
		return apperr.Conflict("participant limit reached")
	}
	return nil
}

// Cancel transitions a request to CANCELED on behalf of its owner. Returns
// false when the request was already canceled; that is a no-op, not an
// error, so retried cancels stay idempotent. A confirmed request may be
// canceled and releases its seat.
func Cancel(req *model.ParticipationRequest, userID int64) (bool, error) {
	if req.RequesterID != userID {
		return false, apperr.Forbidden("user %d cannot cancel request %d", userID, req.ID)
	}
	if req.Status == model.RequestCanceled {
		return false, nil
	}
	req.Status = model.RequestCanceled
	return true, nil
}

// Plan is the set of status transitions a batch decision resolves to. IDs
// are in ascending order. SweepPending means capacity was exhausted by this
// batch and every remaining PENDING request of the event, batch or not,
// must be rejected in the same transaction.
type Plan struct {
	Confirm      []int64
	Reject       []int64
	SweepPending bool
}

// PlanDecision computes the batch outcome for the given pending requests.
// requestIDs is what the organizer asked for, batch what the storage layer
// found for (event, ids); a mismatch means a request does not belong to the
// event. The whole batch is validated before anything is decided.
func PlanDecision(ev *model.Event, organizerID int64, requestIDs []int64, batch []model.ParticipationRequest, decision Decision, confirmed int) (Plan, error) {
	if ev.InitiatorID != organizerID {
		return Plan{}, apperr.Forbidden("user %d is not the initiator of event %d", organizerID, ev.ID)
	}
	if !decision.Valid() {
		return Plan{}, apperr.Validation("unknown decision: %s", decision)
	}
	if len(batch) != len(requestIDs) {
		return Plan{}, apperr.Conflict("some requests do not belong to event %d", ev.ID)
	}
	for i := range batch {
		if batch[i].Status != model.RequestPending {
			return Plan{}, apperr.Conflict("request %d is not pending", batch[i].ID)
		}
	}

	// Submission order: request ids are assigned monotonically.
	ordered := make([]model.ParticipationRequest, len(batch))
	copy(ordered, batch)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var plan Plan

	// Requests on unmoderated or unlimited events confirm unconditionally;
	// such requests normally never reach PENDING, but batches over legacy
	// rows still resolve this way.
	if ev.Unlimited() || !ev.RequestModeration {
		for i := range ordered {
			plan.Confirm = append(plan.Confirm, ordered[i].ID)
		}
		return plan, nil
	}

	if decision == DecisionReject {
		for i := range ordered {
			plan.Reject = append(plan.Reject, ordered[i].ID)
		}
		return plan, nil
	}

	remaining := ev.ParticipantLimit - confirmed
	if remaining <= 0 {
		return Plan{}, apperr.Conflict("participant limit reached")
	}
	for i := range ordered {
		if remaining > 0 {
			plan.Confirm = append(plan.Confirm, ordered[i].ID)
			remaining--
		} else {
			plan.Reject = append(plan.Reject, ordered[i].ID)
		}
	}
	plan.SweepPending = remaining == 0
	return plan, nil
}
