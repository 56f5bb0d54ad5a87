package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"afisha/internal/admission"
	"afisha/internal/apperr"
	"afisha/internal/model"
)

// Repository is the storage layer of the admission core. Every operation
// that reads the confirmed count and then writes request state runs as a
// single transaction holding a FOR UPDATE lock on the event row, so two
// submits racing for the last seat serialize on that lock.
type Repository interface {
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error

	GetUser(ctx context.Context, id int64) (*model.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)

	CreateEvent(ctx context.Context, ev *model.Event) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	GetPublishedEvent(ctx context.Context, id int64) (*model.Event, error)
	UpdateEventTx(ctx context.Context, eventID int64, mutate func(*model.Event) error) (*model.Event, error)

	ConfirmedCount(ctx context.Context, eventID int64) (int, error)
	GetRequestByID(ctx context.Context, id int64) (*model.ParticipationRequest, error)
	GetRequestsByEvent(ctx context.Context, eventID int64) ([]model.ParticipationRequest, error)
	GetRequestsByRequester(ctx context.Context, userID int64) ([]model.ParticipationRequest, error)
	SubmitRequestTx(ctx context.Context, requesterID, eventID int64, now time.Time) (*model.ParticipationRequest, error)
	CancelRequestTx(ctx context.Context, userID, requestID int64) (*model.ParticipationRequest, bool, error)
	DecideRequestsTx(ctx context.Context, organizerID, eventID int64, requestIDs []int64, decision admission.Decision) (confirmed, rejected []model.ParticipationRequest, err error)
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get user", err)
	}
	return &u, nil
}

func (r *repository) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Internal("failed to check user existence", err)
	}
	return exists, nil
}

func (r *repository) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get category", err)
	}
	return &c, nil
}

const eventColumns = `id, title, annotation, description, category_id, initiator_id,
	       lat, lon, paid, participant_limit, request_moderation,
	       event_date, created_on, published_on, state`

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	var (
		e         model.Event
		published sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.Title, &e.Annotation, &e.Description, &e.CategoryID, &e.InitiatorID,
		&e.Location.Lat, &e.Location.Lon, &e.Paid, &e.ParticipantLimit, &e.RequestModeration,
		&e.EventDate, &e.CreatedOn, &published, &e.State,
	)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		e.PublishedOn = &t
	}
	return &e, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) (int64, error) {
	query := `
		INSERT INTO events (title, annotation, description, category_id, initiator_id,
		                    lat, lon, paid, participant_limit, request_moderation,
		                    event_date, created_on, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		e.Title, e.Annotation, e.Description, e.CategoryID, e.InitiatorID,
		e.Location.Lat, e.Location.Lon, e.Paid, e.ParticipantLimit, e.RequestModeration,
		e.EventDate, e.CreatedOn, e.State,
	).Scan(&id)
	if err != nil {
		return 0, apperr.Internal("failed to insert event", err)
	}
	return id, nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("event %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get event", err)
	}
	return e, nil
}

func (r *repository) GetPublishedEvent(ctx context.Context, id int64) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND state = $2`,
		id, model.EventPublished)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("event %d not found or not published", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get event", err)
	}
	return e, nil
}

// UpdateEventTx loads the event under a row lock, lets mutate rewrite it
// through the lifecycle state machine and persists the result. Concurrent
// transitions on the same event serialize here.
func (r *repository) UpdateEventTx(ctx context.Context, eventID int64, mutate func(*model.Event) error) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to start transaction", err)
	}
	defer rollbackOnPanic(tx)

	e, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := mutate(e); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	query := `
		UPDATE events
		SET title = $1, annotation = $2, description = $3, category_id = $4,
		    lat = $5, lon = $6, paid = $7, participant_limit = $8,
		    request_moderation = $9, event_date = $10, published_on = $11, state = $12
		WHERE id = $13
	`
	var published sql.NullTime
	if e.PublishedOn != nil {
		published = sql.NullTime{Time: *e.PublishedOn, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, query,
		e.Title, e.Annotation, e.Description, e.CategoryID,
		e.Location.Lat, e.Location.Lon, e.Paid, e.ParticipantLimit,
		e.RequestModeration, e.EventDate, published, e.State, e.ID,
	); err != nil {
		_ = tx.Rollback()
		return nil, apperr.Internal("failed to update event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit event update", err)
	}
	return e, nil
}

// ConfirmedCount is the capacity ledger read. Outside a transaction it is
// only good for decorating responses; admission decisions re-read it under
// the event lock.
func (r *repository) ConfirmedCount(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participation_requests WHERE event_id = $1 AND status = $2`,
		eventID, model.RequestConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, apperr.Internal("failed to count confirmed requests", err)
	}
	return count, nil
}

func (r *repository) GetRequestByID(ctx context.Context, id int64) (*model.ParticipationRequest, error) {
	var req model.ParticipationRequest
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, requester_id, created, status
		 FROM participation_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.EventID, &req.RequesterID, &req.Created, &req.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("participation request %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get participation request", err)
	}
	return &req, nil
}

func (r *repository) GetRequestsByEvent(ctx context.Context, eventID int64) ([]model.ParticipationRequest, error) {
	return r.queryRequests(ctx,
		`SELECT id, event_id, requester_id, created, status
		 FROM participation_requests WHERE event_id = $1 ORDER BY id`, eventID)
}

func (r *repository) GetRequestsByRequester(ctx context.Context, userID int64) ([]model.ParticipationRequest, error) {
	return r.queryRequests(ctx,
		`SELECT id, event_id, requester_id, created, status
		 FROM participation_requests WHERE requester_id = $1 ORDER BY id`, userID)
}

func (r *repository) queryRequests(ctx context.Context, query string, arg any) ([]model.ParticipationRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, apperr.Internal("failed to query participation requests", err)
	}
	defer rows.Close()

	var reqs []model.ParticipationRequest
	for rows.Next() {
		var req model.ParticipationRequest
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &req.Created, &req.Status); err != nil {
			return nil, apperr.Internal("failed to scan participation request", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to iterate participation requests", err)
	}
	return reqs, nil
}

// SubmitRequestTx implements the submit operation as one serializable unit:
// event lock, ledger read, uniqueness check, status decision, insert.
func (r *repository) SubmitRequestTx(ctx context.Context, requesterID, eventID int64, now time.Time) (*model.ParticipationRequest, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to start transaction", err)
	}
	defer rollbackOnPanic(tx)

	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	confirmed, err := txConfirmedCount(ctx, tx, eventID)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var hasActive bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participation_requests
			WHERE event_id = $1 AND requester_id = $2 AND status != $3
		)
	`, eventID, requesterID, model.RequestCanceled).Scan(&hasActive)
	if err != nil {
		_ = tx.Rollback()
		return nil, apperr.Internal("failed to check existing request", err)
	}

	if err := admission.ValidateSubmit(ev, requesterID, hasActive, confirmed); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	req := &model.ParticipationRequest{
		EventID:     eventID,
		RequesterID: requesterID,
		Created:     now,
		Status:      admission.InitialStatus(ev),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO participation_requests (event_id, requester_id, created, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, req.EventID, req.RequesterID, req.Created, req.Status).Scan(&req.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, apperr.Internal("failed to insert participation request", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit request submission", err)
	}
	return req, nil
}

// CancelRequestTx cancels a request on behalf of its owner. Re-canceling is
// a no-op; a released seat becomes visible to the next locked ledger read.
// The bool reports whether the status actually changed.
func (r *repository) CancelRequestTx(ctx context.Context, userID, requestID int64) (*model.ParticipationRequest, bool, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, apperr.Internal("failed to start transaction", err)
	}
	defer rollbackOnPanic(tx)

	var req model.ParticipationRequest
	err = tx.QueryRowContext(ctx, `
		SELECT id, event_id, requester_id, created, status
		FROM participation_requests WHERE id = $1 FOR UPDATE
	`, requestID).Scan(&req.ID, &req.EventID, &req.RequesterID, &req.Created, &req.Status)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, false, apperr.NotFound("participation request %d not found", requestID)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, false, apperr.Internal("failed to lock participation request", err)
	}

	changed, err := admission.Cancel(&req, userID)
	if err != nil {
		_ = tx.Rollback()
		return nil, false, err
	}
	if changed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE participation_requests SET status = $1 WHERE id = $2`,
			req.Status, req.ID,
		); err != nil {
			_ = tx.Rollback()
			return nil, false, apperr.Internal("failed to cancel participation request", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, apperr.Internal("failed to commit request cancellation", err)
	}
	return &req, changed, nil
}

// DecideRequestsTx applies an organizer batch decision. The event lock is
// held across the whole multi-row update including the pending sweep, so no
// concurrent submit can slip a confirmation in after the limit is reached.
func (r *repository) DecideRequestsTx(ctx context.Context, organizerID, eventID int64, requestIDs []int64, decision admission.Decision) ([]model.ParticipationRequest, []model.ParticipationRequest, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apperr.Internal("failed to start transaction", err)
	}
	defer rollbackOnPanic(tx)

	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	batch, err := lockRequestBatch(ctx, tx, eventID, requestIDs)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	confirmedCount, err := txConfirmedCount(ctx, tx, eventID)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	plan, err := admission.PlanDecision(ev, organizerID, requestIDs, batch, decision, confirmedCount)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	if err := updateStatuses(ctx, tx, plan.Confirm, model.RequestConfirmed); err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if err := updateStatuses(ctx, tx, plan.Reject, model.RequestRejected); err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}

	byID := make(map[int64]*model.ParticipationRequest, len(batch))
	for i := range batch {
		byID[batch[i].ID] = &batch[i]
	}
	var confirmed, rejected []model.ParticipationRequest
	for _, id := range plan.Confirm {
		req := byID[id]
		req.Status = model.RequestConfirmed
		confirmed = append(confirmed, *req)
	}
	for _, id := range plan.Reject {
		req := byID[id]
		req.Status = model.RequestRejected
		rejected = append(rejected, *req)
	}

	if plan.SweepPending {
		swept, err := sweepPendingRequests(ctx, tx, eventID)
		if err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
		rejected = append(rejected, swept...)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apperr.Internal("failed to commit batch decision", err)
	}
	return confirmed, rejected, nil
}

func lockEvent(ctx context.Context, tx *sql.Tx, eventID int64) (*model.Event, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("event %d not found", eventID)
	}
	if err != nil {
		return nil, apperr.Internal("failed to lock event row", err)
	}
	return e, nil
}

func txConfirmedCount(ctx context.Context, tx *sql.Tx, eventID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participation_requests WHERE event_id = $1 AND status = $2`,
		eventID, model.RequestConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, apperr.Internal("failed to count confirmed requests", err)
	}
	return count, nil
}

// lockRequestBatch loads the named requests of the event with row locks, in
// id order. Requests of other events are silently absent; the planner
// treats the length mismatch as a conflict.
func lockRequestBatch(ctx context.Context, tx *sql.Tx, eventID int64, requestIDs []int64) ([]model.ParticipationRequest, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(requestIDs)+1)
	args = append(args, eventID)
	marks := make([]string, len(requestIDs))
	for i, id := range requestIDs {
		marks[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, event_id, requester_id, created, status
		FROM participation_requests
		WHERE event_id = $1 AND id IN (%s)
		ORDER BY id
		FOR UPDATE
	`, strings.Join(marks, ", "))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("failed to lock request batch", err)
	}
	defer rows.Close()

	var reqs []model.ParticipationRequest
	for rows.Next() {
		var req model.ParticipationRequest
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &req.Created, &req.Status); err != nil {
			return nil, apperr.Internal("failed to scan request batch", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to iterate request batch", err)
	}
	return reqs, nil
}

func updateStatuses(ctx context.Context, tx *sql.Tx, ids []int64, status model.RequestStatus) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE participation_requests SET status = $1 WHERE id = $2`,
			status, id,
		); err != nil {
			return apperr.Internal("failed to update request status", err)
		}
	}
	return nil
}

// sweepPendingRequests rejects every still-pending request of a full event
// and returns the affected rows.
func sweepPendingRequests(ctx context.Context, tx *sql.Tx, eventID int64) ([]model.ParticipationRequest, error) {
	rows, err := tx.QueryContext(ctx, `
		UPDATE participation_requests
		SET status = $1
		WHERE event_id = $2 AND status = $3
		RETURNING id, event_id, requester_id, created, status
	`, model.RequestRejected, eventID, model.RequestPending)
	if err != nil {
		return nil, apperr.Internal("failed to sweep pending requests", err)
	}
	defer rows.Close()

	var swept []model.ParticipationRequest
	for rows.Next() {
		var req model.ParticipationRequest
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &req.Created, &req.Status); err != nil {
			return nil, apperr.Internal("failed to scan swept request", err)
		}
		swept = append(swept, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to iterate swept requests", err)
	}
	return swept, nil
}

func rollbackOnPanic(tx *sql.Tx) {
	if p := recover(); p != nil {
		_ = tx.Rollback()
		panic(p)
	}
}
