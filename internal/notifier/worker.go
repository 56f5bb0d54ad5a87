// Package notifier consumes participation status messages and emails the
// affected requester. It runs beside the HTTP server and never feeds back
// into the admission path.
package notifier

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"afisha/internal/dto"
	"afisha/internal/mailer"
	"afisha/internal/rabbit"
	"afisha/internal/repo"
)

type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	mail   mailer.Config
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, mail mailer.Config) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		mail: mail,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.RequestStatusMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("failed to unmarshal message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Int64("request_id", msg.RequestID).
				Int64("event_id", msg.EventID).
				Str("status", msg.Status).
				Msg("received status change notification")

			req, err := r.repo.GetRequestByID(cctx, msg.RequestID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("request_id", msg.RequestID).
					Msg("failed to load request for notification")
				return nil
			}

			event, err := r.repo.GetEventByID(cctx, req.EventID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("event_id", req.EventID).
					Msg("failed to load event for notification")
				return nil
			}

			requester, err := r.repo.GetUser(cctx, req.RequesterID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("user_id", req.RequesterID).
					Msg("failed to load requester for notification")
				return nil
			}

			if err := mailer.SendStatusEmail(
				&zlog.Logger,
				r.mail,
				event.Title,
				msg.Status,
				requester.Email,
			); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Msg("failed to send notification e-mail")
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
