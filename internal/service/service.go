package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"afisha/internal/admission"
	"afisha/internal/apperr"
	"afisha/internal/dto"
	"afisha/internal/lifecycle"
	"afisha/internal/model"
	"afisha/internal/repo"
	"afisha/pkg/validator"
)

// Service binds the admission flow to HTTP: it resolves the actors and
// referenced records, drives the state machines through the repository's
// transactional units and surfaces their errors unchanged.
type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetUserEvent(ctx *ginext.Context)
	UpdateEventByUser(ctx *ginext.Context)
	UpdateEventByAdmin(ctx *ginext.Context)
	GetPublicEvent(ctx *ginext.Context)

	SubmitRequest(ctx *ginext.Context)
	CancelRequest(ctx *ginext.Context)
	GetUserRequests(ctx *ginext.Context)
	GetEventRequests(ctx *ginext.Context)
	DecideRequests(ctx *ginext.Context)
}

// Publisher sends notification payloads to the message broker.
type Publisher interface {
	Publish(message []byte) error
}

// StatsClient decorates read responses with view counts. Failures degrade
// to zero, they never fail the request.
type StatsClient interface {
	RecordAccess(ctx context.Context, uri, clientIP string, ts time.Time)
	EventViews(ctx context.Context, eventID int64) int64
}

type service struct {
	repo  repo.Repository
	log   *zerolog.Logger
	rbt   Publisher
	stats StatsClient
	now   func() time.Time
}

func NewService(repo repo.Repository, logger *zerolog.Logger, rbt Publisher, stats StatsClient) Service {
	return &service{
		repo:  repo,
		log:   logger,
		rbt:   rbt,
		stats: stats,
		now:   time.Now,
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}

	var req dto.NewEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	rctx := ctx.Request.Context()
	if !s.requireUser(ctx, rctx, userID) {
		return
	}
	if _, err := s.repo.GetCategory(rctx, req.Category); err != nil {
		dto.DomainError(ctx, err)
		return
	}

	ev, err := lifecycle.New(userID, lifecycle.NewEventSpec{
		Title:             req.Title,
		Annotation:        req.Annotation,
		Description:       req.Description,
		CategoryID:        req.Category,
		EventDate:         req.EventDate,
		Location:          model.Location{Lat: req.Location.Lat, Lon: req.Location.Lon},
		Paid:              req.Paid,
		ParticipantLimit:  req.ParticipantLimit,
		RequestModeration: req.RequestModeration,
	}, s.now())
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	id, err := s.repo.CreateEvent(rctx, &ev)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.DomainError(ctx, err)
		return
	}
	ev.ID = id

	s.log.Info().Int64("event_id", id).Int64("initiator_id", userID).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, dto.ToEventResponse(&ev, 0, 0))
}

func (s *service) GetUserEvent(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, "eventId")
	if !ok {
		return
	}

	rctx := ctx.Request.Context()
	ev, err := s.repo.GetEventByID(rctx, eventID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}
	if ev.InitiatorID != userID {
		dto.DomainError(ctx, apperr.NotFound("event %d not found", eventID))
		return
	}

	s.respondWithEvent(ctx, ev)
}

func (s *service) UpdateEventByUser(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, "eventId")
	if !ok {
		return
	}

	patch, ok := s.bindPatch(ctx)
	if !ok {
		return
	}

	now := s.now()
	ev, err := s.repo.UpdateEventTx(ctx.Request.Context(), eventID, func(e *model.Event) error {
		return lifecycle.ApplyUserUpdate(e, userID, patch, now)
	})
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	s.log.Info().Int64("event_id", eventID).Str("state", string(ev.State)).Msg("event updated by initiator")
	s.respondWithEvent(ctx, ev)
}

func (s *service) UpdateEventByAdmin(ctx *ginext.Context) {
	eventID, ok := pathID(ctx, "eventId")
	if !ok {
		return
	}

	patch, ok := s.bindPatch(ctx)
	if !ok {
		return
	}

	now := s.now()
	ev, err := s.repo.UpdateEventTx(ctx.Request.Context(), eventID, func(e *model.Event) error {
		return lifecycle.ApplyAdminUpdate(e, patch, now)
	})
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	s.log.Info().Int64("event_id", eventID).Str("state", string(ev.State)).Msg("event updated by administrator")
	s.respondWithEvent(ctx, ev)
}

func (s *service) GetPublicEvent(ctx *ginext.Context) {
	eventID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	rctx := ctx.Request.Context()
	ev, err := s.repo.GetPublishedEvent(rctx, eventID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	s.stats.RecordAccess(rctx, ctx.Request.URL.Path, ctx.ClientIP(), s.now())

	s.respondWithEvent(ctx, ev)
}

func (s *service) SubmitRequest(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	eventID, err := strconv.ParseInt(ctx.Query("eventId"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	rctx := ctx.Request.Context()
	if !s.requireUser(ctx, rctx, userID) {
		return
	}

	req, err := s.repo.SubmitRequestTx(rctx, userID, eventID, s.now())
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	s.log.Info().
		Int64("request_id", req.ID).
		Int64("event_id", eventID).
		Str("status", string(req.Status)).
		Msg("participation request submitted")
	s.publishStatus(req)

	dto.SuccessCreatedResponse(ctx, dto.ToRequestResponse(req))
}

func (s *service) CancelRequest(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	requestID, ok := pathID(ctx, "requestId")
	if !ok {
		return
	}

	req, changed, err := s.repo.CancelRequestTx(ctx.Request.Context(), userID, requestID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	if changed {
		s.log.Info().Int64("request_id", requestID).Msg("participation request canceled")
		s.publishStatus(req)
	}

	dto.SuccessResponse(ctx, dto.ToRequestResponse(req))
}

func (s *service) GetUserRequests(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}

	rctx := ctx.Request.Context()
	if !s.requireUser(ctx, rctx, userID) {
		return
	}

	reqs, err := s.repo.GetRequestsByRequester(rctx, userID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.ToRequestResponses(reqs))
}

func (s *service) GetEventRequests(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, "eventId")
	if !ok {
		return
	}

	rctx := ctx.Request.Context()
	ev, err := s.repo.GetEventByID(rctx, eventID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}
	if ev.InitiatorID != userID {
		dto.DomainError(ctx, apperr.Forbidden("user %d is not the initiator of event %d", userID, eventID))
		return
	}

	reqs, err := s.repo.GetRequestsByEvent(rctx, eventID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.ToRequestResponses(reqs))
}

func (s *service) DecideRequests(ctx *ginext.Context) {
	userID, ok := pathID(ctx, "userId")
	if !ok {
		return
	}
	eventID, ok := pathID(ctx, "eventId")
	if !ok {
		return
	}

	var req dto.StatusUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	confirmed, rejected, err := s.repo.DecideRequestsTx(
		ctx.Request.Context(), userID, eventID, req.RequestIDs, admission.Decision(req.Status))
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}

	s.log.Info().
		Int64("event_id", eventID).
		Int("confirmed", len(confirmed)).
		Int("rejected", len(rejected)).
		Msg("batch decision applied")
	for i := range confirmed {
		s.publishStatus(&confirmed[i])
	}
	for i := range rejected {
		s.publishStatus(&rejected[i])
	}

	dto.SuccessResponse(ctx, dto.StatusUpdateResult{
		ConfirmedRequests: dto.ToRequestResponses(confirmed),
		RejectedRequests:  dto.ToRequestResponses(rejected),
	})
}

func (s *service) respondWithEvent(ctx *ginext.Context, ev *model.Event) {
	rctx := ctx.Request.Context()
	confirmed, err := s.repo.ConfirmedCount(rctx, ev.ID)
	if err != nil {
		dto.DomainError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, dto.ToEventResponse(ev, confirmed, s.stats.EventViews(rctx, ev.ID)))
}

func (s *service) requireUser(ctx *ginext.Context, rctx context.Context, userID int64) bool {
	exists, err := s.repo.UserExists(rctx, userID)
	if err != nil {
		dto.DomainError(ctx, err)
		return false
	}
	if !exists {
		dto.DomainError(ctx, apperr.NotFound("user %d not found", userID))
		return false
	}
	return true
}

func (s *service) bindPatch(ctx *ginext.Context) (lifecycle.Patch, bool) {
	var req dto.UpdateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return lifecycle.Patch{}, false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return lifecycle.Patch{}, false
	}

	if req.Category != nil {
		if _, err := s.repo.GetCategory(ctx.Request.Context(), *req.Category); err != nil {
			dto.DomainError(ctx, err)
			return lifecycle.Patch{}, false
		}
	}

	patch := lifecycle.Patch{
		Title:             req.Title,
		Annotation:        req.Annotation,
		Description:       req.Description,
		CategoryID:        req.Category,
		EventDate:         req.EventDate,
		Paid:              req.Paid,
		ParticipantLimit:  req.ParticipantLimit,
		RequestModeration: req.RequestModeration,
		StateAction:       lifecycle.StateAction(req.StateAction),
	}
	if req.Location != nil {
		patch.Location = &model.Location{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}
	return patch, true
}

// publishStatus emits a notification about a request status change. Broker
// failures are logged and ignored, notifications never gate admission.
func (s *service) publishStatus(req *model.ParticipationRequest) {
	msg := dto.RequestStatusMessage{
		RequestID: req.ID,
		EventID:   req.EventID,
		Status:    string(req.Status),
		ChangedAt: s.now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal status message")
		return
	}
	if err := s.rbt.Publish(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to publish status message")
	}
}

func pathID(ctx *ginext.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid "+name)
		return 0, false
	}
	return id, true
}
