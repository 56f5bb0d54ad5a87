package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"afisha/internal/apperr"
	"afisha/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."
)

type LocationDto struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type NewEventRequest struct {
	Title             string      `json:"title" validate:"required,min=3,max=120"`
	Annotation        string      `json:"annotation" validate:"required,min=20,max=2000"`
	Description       string      `json:"description" validate:"max=7000"`
	Category          int64       `json:"category" validate:"required"`
	EventDate         time.Time   `json:"event_date" validate:"required"`
	Location          LocationDto `json:"location"`
	Paid              *bool       `json:"paid,omitempty"`
	ParticipantLimit  *int        `json:"participant_limit,omitempty" validate:"omitempty,gte=0"`
	RequestModeration *bool       `json:"request_moderation,omitempty"`
}

type UpdateEventRequest struct {
	Title             *string      `json:"title,omitempty" validate:"omitempty,min=3,max=120"`
	Annotation        *string      `json:"annotation,omitempty" validate:"omitempty,min=20,max=2000"`
	Description       *string      `json:"description,omitempty" validate:"omitempty,max=7000"`
	Category          *int64       `json:"category,omitempty"`
	EventDate         *time.Time   `json:"event_date,omitempty"`
	Location          *LocationDto `json:"location,omitempty"`
	Paid              *bool        `json:"paid,omitempty"`
	ParticipantLimit  *int         `json:"participant_limit,omitempty" validate:"omitempty,gte=0"`
	RequestModeration *bool        `json:"request_moderation,omitempty"`
	StateAction       string       `json:"state_action,omitempty"`
}

type StatusUpdateRequest struct {
	RequestIDs []int64 `json:"request_ids" validate:"required,min=1"`
	Status     string  `json:"status" validate:"required"`
}

type EventResponse struct {
	ID                int64       `json:"id"`
	Title             string      `json:"title"`
	Annotation        string      `json:"annotation"`
	Description       string      `json:"description"`
	Category          int64       `json:"category"`
	Initiator         int64       `json:"initiator"`
	Location          LocationDto `json:"location"`
	Paid              bool        `json:"paid"`
	ParticipantLimit  int         `json:"participant_limit"`
	RequestModeration bool        `json:"request_moderation"`
	EventDate         time.Time   `json:"event_date"`
	CreatedOn         time.Time   `json:"created_on"`
	PublishedOn       *time.Time  `json:"published_on,omitempty"`
	State             string      `json:"state"`
	ConfirmedRequests int         `json:"confirmed_requests"`
	Views             int64       `json:"views"`
}

type RequestResponse struct {
	ID        int64     `json:"id"`
	Event     int64     `json:"event"`
	Requester int64     `json:"requester"`
	Created   time.Time `json:"created"`
	Status    string    `json:"status"`
}

type StatusUpdateResult struct {
	ConfirmedRequests []RequestResponse `json:"confirmed_requests"`
	RejectedRequests  []RequestResponse `json:"rejected_requests"`
}

// RequestStatusMessage is published to the notifications queue on every
// participation request status change.
type RequestStatusMessage struct {
	RequestID int64     `json:"request_id"`
	EventID   int64     `json:"event_id"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

func ToEventResponse(e *model.Event, confirmed int, views int64) EventResponse {
	return EventResponse{
		ID:                e.ID,
		Title:             e.Title,
		Annotation:        e.Annotation,
		Description:       e.Description,
		Category:          e.CategoryID,
		Initiator:         e.InitiatorID,
		Location:          LocationDto{Lat: e.Location.Lat, Lon: e.Location.Lon},
		Paid:              e.Paid,
		ParticipantLimit:  e.ParticipantLimit,
		RequestModeration: e.RequestModeration,
		EventDate:         e.EventDate,
		CreatedOn:         e.CreatedOn,
		PublishedOn:       e.PublishedOn,
		State:             string(e.State),
		ConfirmedRequests: confirmed,
		Views:             views,
	}
}

func ToRequestResponse(r *model.ParticipationRequest) RequestResponse {
	return RequestResponse{
		ID:        r.ID,
		Event:     r.EventID,
		Requester: r.RequesterID,
		Created:   r.Created,
		Status:    string(r.Status),
	}
}

func ToRequestResponses(reqs []model.ParticipationRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, ToRequestResponse(&reqs[i]))
	}
	return out
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

// StatusOf maps an error-taxonomy kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return 404
	case apperr.KindForbidden:
		return 403
	case apperr.KindValidation:
		return 400
	case apperr.KindConflict:
		return 409
	default:
		return 500
	}
}

// DomainError writes a business error using the taxonomy mapping. Internal
// failures are masked with a generic message; everything else surfaces
// as-is.
func DomainError(c *ginext.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		InternalServerError(c)
		return
	}
	c.JSON(StatusOf(err), Response{
		Status: "error",
		Error: &Error{
			Code: string(kind),
			Desc: err.Error(),
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
