package dto

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"afisha/internal/apperr"
	"afisha/internal/model"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 404, StatusOf(apperr.NotFound("event 1 not found")))
	assert.Equal(t, 403, StatusOf(apperr.Forbidden("not yours")))
	assert.Equal(t, 400, StatusOf(apperr.Validation("bad date")))
	assert.Equal(t, 409, StatusOf(apperr.Conflict("limit reached")))
	assert.Equal(t, 500, StatusOf(apperr.Internal("db down", errors.New("boom"))))
	assert.Equal(t, 500, StatusOf(errors.New("plain")))
}

func TestToEventResponse(t *testing.T) {
	published := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := &model.Event{
		ID:               10,
		Title:            "Jazz evening",
		CategoryID:       2,
		InitiatorID:      7,
		Location:         model.Location{Lat: 55.75, Lon: 37.62},
		ParticipantLimit: 50,
		State:            model.EventPublished,
		PublishedOn:      &published,
	}

	resp := ToEventResponse(ev, 12, 340)
	assert.Equal(t, int64(10), resp.ID)
	assert.Equal(t, int64(2), resp.Category)
	assert.Equal(t, int64(7), resp.Initiator)
	assert.Equal(t, 12, resp.ConfirmedRequests)
	assert.Equal(t, int64(340), resp.Views)
	assert.Equal(t, "PUBLISHED", resp.State)
	assert.Equal(t, &published, resp.PublishedOn)
	assert.Equal(t, 55.75, resp.Location.Lat)
}

func TestToRequestResponses(t *testing.T) {
	reqs := []model.ParticipationRequest{
		{ID: 1, EventID: 10, RequesterID: 8, Status: model.RequestConfirmed},
		{ID: 2, EventID: 10, RequesterID: 9, Status: model.RequestRejected},
	}

	out := ToRequestResponses(reqs)
	assert.Len(t, out, 2)
	assert.Equal(t, "CONFIRMED", out[0].Status)
	assert.Equal(t, int64(9), out[1].Requester)

	assert.Empty(t, ToRequestResponses(nil))
}
