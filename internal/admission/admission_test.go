package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afisha/internal/apperr"
	"afisha/internal/model"
)

func publishedEvent(limit int, moderation bool) *model.Event {
	return &model.Event{
		ID:                10,
		InitiatorID:       7,
		ParticipantLimit:  limit,
		RequestModeration: moderation,
		State:             model.EventPublished,
	}
}

func pendingBatch(ids ...int64) []model.ParticipationRequest {
	out := make([]model.ParticipationRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ParticipationRequest{
			ID:      id,
			EventID: 10,
			Status:  model.RequestPending,
		})
	}
	return out
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, model.RequestPending, InitialStatus(publishedEvent(10, true)))
	assert.Equal(t, model.RequestConfirmed, InitialStatus(publishedEvent(0, true)))
	assert.Equal(t, model.RequestConfirmed, InitialStatus(publishedEvent(10, false)))
}

func TestValidateSubmit(t *testing.T) {
	tests := []struct {
		name      string
		ev        *model.Event
		requester int64
		hasActive bool
		confirmed int
		wantKind  apperr.Kind
	}{
		{"ok", publishedEvent(10, true), 8, false, 5, ""},
		{"own event", publishedEvent(10, true), 7, false, 0, apperr.KindConflict},
		{"duplicate", publishedEvent(10, true), 8, true, 0, apperr.KindConflict},
		{"limit reached", publishedEvent(10, true), 8, false, 10, apperr.KindConflict},
		{"unlimited ignores count", publishedEvent(0, true), 8, false, 1000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmit(tt.ev, tt.requester, tt.hasActive, tt.confirmed)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestValidateSubmitUnpublished(t *testing.T) {
	for _, state := range []model.EventState{model.EventPendingReview, model.EventCanceled} {
		ev := publishedEvent(10, true)
		ev.State = state

		err := ValidateSubmit(ev, 8, false, 0)
		require.Error(t, err, "state %s", state)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	}
}

func TestCancelOwnRequest(t *testing.T) {
	req := &model.ParticipationRequest{ID: 1, RequesterID: 8, Status: model.RequestPending}
	changed, err := Cancel(req, 8)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.RequestCanceled, req.Status)
}

func TestCancelConfirmedReleasesSeat(t *testing.T) {
	req := &model.ParticipationRequest{ID: 1, RequesterID: 8, Status: model.RequestConfirmed}
	changed, err := Cancel(req, 8)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.RequestCanceled, req.Status)
}

func TestCancelIdempotent(t *testing.T) {
	req := &model.ParticipationRequest{ID: 1, RequesterID: 8, Status: model.RequestCanceled}
	changed, err := Cancel(req, 8)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.RequestCanceled, req.Status)
}

func TestCancelForeignRequest(t *testing.T) {
	req := &model.ParticipationRequest{ID: 1, RequesterID: 8, Status: model.RequestPending}
	_, err := Cancel(req, 9)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestPlanDecisionNotInitiator(t *testing.T) {
	_, err := PlanDecision(publishedEvent(10, true), 8, []int64{1}, pendingBatch(1), DecisionConfirm, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestPlanDecisionUnknownDecision(t *testing.T) {
	_, err := PlanDecision(publishedEvent(10, true), 7, []int64{1}, pendingBatch(1), "MAYBE", 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPlanDecisionForeignRequestInBatch(t *testing.T) {
	// Storage found fewer rows than asked for: one id belongs elsewhere.
	_, err := PlanDecision(publishedEvent(10, true), 7, []int64{1, 2}, pendingBatch(1), DecisionConfirm, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPlanDecisionNonPendingInBatch(t *testing.T) {
	batch := pendingBatch(1, 2)
	batch[1].Status = model.RequestConfirmed

	_, err := PlanDecision(publishedEvent(10, true), 7, []int64{1, 2}, batch, DecisionConfirm, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPlanDecisionRejectAll(t *testing.T) {
	plan, err := PlanDecision(publishedEvent(10, true), 7, []int64{3, 1, 2}, pendingBatch(3, 1, 2), DecisionReject, 0)
	require.NoError(t, err)
	assert.Empty(t, plan.Confirm)
	assert.Equal(t, []int64{1, 2, 3}, plan.Reject)
	assert.False(t, plan.SweepPending)
}

func TestPlanDecisionConfirmAllFits(t *testing.T) {
	plan, err := PlanDecision(publishedEvent(10, true), 7, []int64{2, 1}, pendingBatch(2, 1), DecisionConfirm, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, plan.Confirm)
	assert.Empty(t, plan.Reject)
	assert.False(t, plan.SweepPending)
}

func TestPlanDecisionPartialOverflow(t *testing.T) {
	// Limit 10, 8 already confirmed: first two in submission order confirm,
	// the third is rejected and the event is full, so the sweep fires.
	plan, err := PlanDecision(publishedEvent(10, true), 7, []int64{5, 3, 9}, pendingBatch(5, 3, 9), DecisionConfirm, 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, plan.Confirm)
	assert.Equal(t, []int64{9}, plan.Reject)
	assert.True(t, plan.SweepPending)
}

func TestPlanDecisionExactFillSweeps(t *testing.T) {
	plan, err := PlanDecision(publishedEvent(10, true), 7, []int64{1, 2}, pendingBatch(1, 2), DecisionConfirm, 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, plan.Confirm)
	assert.Empty(t, plan.Reject)
	assert.True(t, plan.SweepPending)
}

func TestPlanDecisionAlreadyFull(t *testing.T) {
	_, err := PlanDecision(publishedEvent(10, true), 7, []int64{1}, pendingBatch(1), DecisionConfirm, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestPlanDecisionUnmoderatedConfirmsUnconditionally(t *testing.T) {
	// Even a REJECTED verdict resolves to confirm when the event does not
	// moderate requests.
	plan, err := PlanDecision(publishedEvent(10, false), 7, []int64{1, 2}, pendingBatch(1, 2), DecisionReject, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, plan.Confirm)
	assert.Empty(t, plan.Reject)
}

func TestPlanDecisionUnlimitedConfirmsUnconditionally(t *testing.T) {
	plan, err := PlanDecision(publishedEvent(0, true), 7, []int64{1, 2}, pendingBatch(1, 2), DecisionConfirm, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, plan.Confirm)
}

func TestPlanDecisionOrderIsDeterministic(t *testing.T) {
	ids := []int64{9, 5, 3}
	var first Plan
	for i := 0; i < 5; i++ {
		plan, err := PlanDecision(publishedEvent(10, true), 7, ids, pendingBatch(9, 5, 3), DecisionConfirm, 9)
		require.NoError(t, err)
		if i == 0 {
			first = plan
			continue
		}
		assert.Equal(t, first, plan)
	}
	assert.Equal(t, []int64{3}, first.Confirm)
	assert.Equal(t, []int64{5, 9}, first.Reject)
}

func TestCancelDoesNotTouchCreated(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req := &model.ParticipationRequest{ID: 1, RequesterID: 8, Created: created, Status: model.RequestPending}
	_, err := Cancel(req, 8)
	require.NoError(t, err)
	assert.Equal(t, created, req.Created)
}
