// Package manager is the help request lifecycle engine. Every
// state-changing operation re-checks role and ownership against the
// stored record and commits through a conditional update, so concurrent
// callers racing on one request see exactly one winner.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 1000
)

const msgNotFound = "Request not found"

type RequestManager struct {
	db     *gorm.DB
	broker *Broker
	log    *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*RequestManager)

func WithBroker(b *Broker) Option {
	return func(m *RequestManager) { m.broker = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *RequestManager) { m.log = l }
}

// WithClock replaces time.Now for timestamps written by the engine.
func WithClock(now func() time.Time) Option {
	return func(m *RequestManager) { m.now = now }
}

func New(d *gorm.DB, opts ...Option) *RequestManager {
	m := &RequestManager{
		db:     d,
		broker: NewBroker(),
		log:    slog.Default(),
		now:    time.Now,
		tracer: otel.Tracer("github.com/helpinghand/helpinghand/internal/manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RequestManager) Broker() *Broker { return m.broker }

type CreateInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    db.Category `json:"category"`
}

func (in *CreateInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Category == "" {
		in.Category = db.CategoryOther
	}
	switch {
	case in.Title == "":
		return apperr.Validation("Title is required")
	case utf8.RuneCountInString(in.Title) > maxTitleLen:
		return apperr.Validation("Title cannot exceed %d characters", maxTitleLen)
	case in.Description == "":
		return apperr.Validation("Description is required")
	case utf8.RuneCountInString(in.Description) > maxDescriptionLen:
		return apperr.Validation("Description cannot exceed %d characters", maxDescriptionLen)
	case !in.Category.Valid():
		return apperr.Validation("Please select a valid category")
	}
	return nil
}

func (m *RequestManager) Create(ctx context.Context, actor auth.Principal, in CreateInput) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Create", "")
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleHelpSeeker) {
		return nil, apperr.Forbidden("Only help seekers can create requests.")
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := m.now()
	req := db.HelpRequest{
		RequesterID: actor.ID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Status:      db.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to create request: %w", err))
	}
	m.log.Info("help request created", "request_id", req.ID, "requester_id", actor.ID, "category", req.Category)
	m.emit(EventCreated, nil, &req, actor)
	return m.view(ctx, req)
}

func (m *RequestManager) Accept(ctx context.Context, id string, actor auth.Principal) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Accept", id)
	defer func() { finish(span, err) }()

	if !actor.Is(db.RoleVolunteer) {
		return nil, apperr.Forbidden("Only volunteers can accept requests.")
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(req.Status, db.StatusAccepted) {
		return nil, apperr.Conflict("Request is already %s.", req.Status)
	}

	res := m.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Where("id = ? AND status = ? AND assigned_volunteer_id IS NULL", id, db.StatusPending).
		Updates(map[string]interface{}{
			"status":                db.StatusAccepted,
			"assigned_volunteer_id": actor.ID,
			"updated_at":            m.now(),
		})
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to accept request: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, m.lost(ctx, id, func(cur *db.HelpRequest) error {
			if cur.Status != db.StatusPending {
				return apperr.Conflict("Request is already %s.", cur.Status)
			}
			return nil
		})
	}
	return m.committed(ctx, id, EventAccepted, req, actor)
}

func (m *RequestManager) Complete(ctx context.Context, id string, actor auth.Principal) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Complete", id)
	defer func() { finish(span, err) }()

	check := func(cur *db.HelpRequest) error {
		if !CanTransition(cur.Status, db.StatusCompleted) {
			return apperr.Conflict("Request is %s; it must be accepted to be marked as completed.", cur.Status)
		}
		if !cur.AssignedTo(actor.ID) {
			return apperr.NotAuthorized("Not authorized to complete this request.")
		}
		return nil
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(req); err != nil {
		return nil, err
	}

	res := m.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Where("id = ? AND status = ? AND assigned_volunteer_id = ?", id, db.StatusAccepted, actor.ID).
		Updates(map[string]interface{}{
			"status":     db.StatusCompleted,
			"updated_at": m.now(),
		})
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to complete request: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, m.lost(ctx, id, check)
	}
	return m.committed(ctx, id, EventCompleted, req, actor)
}

// Cancel withdraws a pending or accepted request. Any assignment is
// dropped with it.
func (m *RequestManager) Cancel(ctx context.Context, id string, actor auth.Principal) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Cancel", id)
	defer func() { finish(span, err) }()

	check := func(cur *db.HelpRequest) error {
		if cur.RequesterID != actor.ID {
			return apperr.NotAuthorized("Not authorized to cancel this request.")
		}
		if !CanTransition(cur.Status, db.StatusCancelled) {
			return apperr.Conflict("Request is already %s and cannot be cancelled.", cur.Status)
		}
		return nil
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(req); err != nil {
		return nil, err
	}

	res := m.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Where("id = ? AND requester_id = ? AND status IN ?", id, actor.ID, []db.Status{db.StatusPending, db.StatusAccepted}).
		Updates(map[string]interface{}{
			"status":                db.StatusCancelled,
			"assigned_volunteer_id": nil,
			"updated_at":            m.now(),
		})
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to cancel request: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, m.lost(ctx, id, check)
	}
	return m.committed(ctx, id, EventCancelled, req, actor)
}

// Unassign returns an accepted request to the pending pool.
func (m *RequestManager) Unassign(ctx context.Context, id string, actor auth.Principal) (_ *RequestView, err error) {
	ctx, span := m.start(ctx, "Unassign", id)
	defer func() { finish(span, err) }()

	check := func(cur *db.HelpRequest) error {
		if !CanTransition(cur.Status, db.StatusPending) {
			return apperr.Conflict("Request is %s; only accepted requests can be unassigned.", cur.Status)
		}
		if !cur.AssignedTo(actor.ID) {
			return apperr.NotAuthorized("Not authorized to unassign from this request.")
		}
		return nil
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(req); err != nil {
		return nil, err
	}

	res := m.db.WithContext(ctx).Model(&db.HelpRequest{}).
		Where("id = ? AND status = ? AND assigned_volunteer_id = ?", id, db.StatusAccepted, actor.ID).
		Updates(map[string]interface{}{
			"status":                db.StatusPending,
			"assigned_volunteer_id": nil,
			"updated_at":            m.now(),
		})
	if res.Error != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to unassign request: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, m.lost(ctx, id, check)
	}
	return m.committed(ctx, id, EventUnassigned, req, actor)
}

// load fetches a request by id. Malformed ids are reported as missing.
func (m *RequestManager) load(ctx context.Context, id string) (*db.HelpRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound(msgNotFound)
	}
	var req db.HelpRequest
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to load request: %w", err))
	}
	return &req, nil
}

// lost explains a conditional update that matched no row: the record is
// re-read and the precondition that now fails is reported.
func (m *RequestManager) lost(ctx context.Context, id string, check func(*db.HelpRequest) error) error {
	cur, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if err := check(cur); err != nil {
		return err
	}
	return apperr.Conflict("Request is now %s; reload and try again.", cur.Status)
}

// committed reloads a request after a successful write, announces it and
// returns its view. before is the state the write was validated against.
func (m *RequestManager) committed(ctx context.Context, id string, ev EventType, before *db.HelpRequest, actor auth.Principal) (*RequestView, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	m.log.Info("help request "+string(ev), "request_id", id, "actor", actor.ID, "status", req.Status)
	m.emit(ev, before, req, actor)
	return m.view(ctx, *req)
}

func (m *RequestManager) emit(t EventType, before, after *db.HelpRequest, actor auth.Principal) {
	ev := Event{
		Type:        t,
		RequestID:   after.ID,
		Status:      after.Status,
		Actor:       actor.ID,
		At:          m.now(),
		requesterID: after.RequesterID,
		open:        after.Status == db.StatusPending,
	}
	if after.AssignedVolunteerID != nil {
		ev.volunteers = append(ev.volunteers, *after.AssignedVolunteerID)
	}
	if before != nil {
		ev.open = ev.open || before.Status == db.StatusPending
		if v := before.AssignedVolunteerID; v != nil && !after.AssignedTo(*v) {
			ev.volunteers = append(ev.volunteers, *v)
		}
	}
	m.broker.Publish(ev)
}

func (m *RequestManager) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, "manager."+op)
	if id != "" {
		span.SetAttributes(attribute.String("request.id", id))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", apperr.KindOf(err).String()))
		if apperr.KindOf(err) == apperr.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
