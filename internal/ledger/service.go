package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saakshy/saakshy-backend/pkg/enums"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	"github.com/saakshy/saakshy-backend/pkg/metrics"
)

const (
	defaultMaxAttempts         = 3
	defaultRecentActivityLimit = 7
	dateLayout                 = "2006-01-02"
)

var tracer = otel.Tracer("github.com/saakshy/saakshy-backend/internal/ledger")

// Actor is whoever issues a command or query. Authenticated actors come from a
// verified bearer token; everyone else is a holder of the record link.
type Actor struct {
	ID            string
	Contact       string
	DisplayName   string
	Authenticated bool
}

type CreateRecordInput struct {
	CounterpartyName    string
	CounterpartyContact string
	Role                enums.PartyRole
	Amount              decimal.Decimal
	DueDate             string
	Note                string
}

type ConfirmInput struct {
	ConfirmedByName string
}

type AddPaymentInput struct {
	Amount decimal.Decimal
	// Date defaults to the current day when empty.
	Date      string
	Reference string
}

type DisputeInput struct {
	Reason string
}

// CommandResult describes the record after a successful command.
type CommandResult struct {
	RecordID        string             `json:"recordId"`
	Status          enums.RecordStatus `json:"status"`
	RemainingAmount decimal.Decimal    `json:"remainingAmount"`
	Seq             int64              `json:"seq"`
	Appended        []Event            `json:"-"`
}

// Service exposes the ledger commands and queries.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateRecordInput) (*CommandResult, error)
	Confirm(ctx context.Context, actor Actor, recordID string, input ConfirmInput) (*CommandResult, error)
	AddPayment(ctx context.Context, actor Actor, recordID string, input AddPaymentInput) (*CommandResult, error)
	RaiseDispute(ctx context.Context, actor Actor, recordID string, input DisputeInput) (*CommandResult, error)

	GetRecord(ctx context.Context, recordID string) (*RecordView, error)
	RecordsForActor(ctx context.Context, actor Actor) ([]RecordView, error)
	VerifyRecord(ctx context.Context, recordID string) (*IntegrityReport, error)
	// Summary computes the dashboard for actor; today is YYYY-MM-DD and defaults to the current day.
	Summary(ctx context.Context, actor Actor, today string) (*Summary, error)
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Store   EventStore
	Cache   ProjectionCache
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	// MaxAttempts bounds how often a command is re-run after losing a seq race.
	MaxAttempts         int
	RecentActivityLimit int
	Clock               func() time.Time
	NewRecordID         func() string
}

type service struct {
	store         EventStore
	cache         ProjectionCache
	logg          *logger.Logger
	metrics       *metrics.LedgerMetrics
	maxAttempts   int
	activityLimit int
	clock         func() time.Time
	newRecordID   func() string
}

// NewService wires a ledger service with the provided store.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ledger event store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	activityLimit := params.RecentActivityLimit
	if activityLimit <= 0 {
		activityLimit = defaultRecentActivityLimit
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := params.NewRecordID
	if newID == nil {
		newID = uuid.NewString
	}
	cache := params.Cache
	if cache == nil {
		cache = noopCache{}
	}
	return &service{
		store:         params.Store,
		cache:         cache,
		logg:          params.Logger,
		metrics:       params.Metrics,
		maxAttempts:   maxAttempts,
		activityLimit: activityLimit,
		clock:         clock,
		newRecordID:   newID,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateRecordInput) (result *CommandResult, err error) {
	ctx, finish := s.begin(ctx, CommandCreate, "", actor)
	defer func() { finish(err) }()

	if !actor.Authenticated || strings.TrimSpace(actor.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "creating a record requires a signed-in user")
	}
	payload, err := validateCreate(input)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(CommandCreate, nil); err != nil {
		return nil, err
	}

	recordID := s.newRecordID()
	appended, err := s.store.Append(ctx, recordID, 1, Draft{
		ActorID:   actor.ID,
		Payload:   payload,
		Timestamp: s.clock(),
	})
	if err != nil {
		return nil, err
	}
	view, err := Project(appended)
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, view)
	s.logg.Info(s.logg.WithRecordID(ctx, recordID), "record created")
	return resultFrom(view, appended), nil
}

func (s *service) Confirm(ctx context.Context, actor Actor, recordID string, input ConfirmInput) (result *CommandResult, err error) {
	ctx, finish := s.begin(ctx, CommandConfirm, recordID, actor)
	defer func() { finish(err) }()

	name := strings.TrimSpace(input.ConfirmedByName)
	if name == "" {
		name = strings.TrimSpace(actor.DisplayName)
	}
	if err := checkLength("confirmedByName", name, maxNameLength); err != nil {
		return nil, err
	}

	return s.execute(ctx, CommandConfirm, recordID, func(view *RecordView) ([]Draft, error) {
		if actor.Authenticated && actor.ID == view.CreatorID {
			return nil, validationError("actor", "the creator cannot confirm their own record")
		}
		return []Draft{{
			ActorID: counterpartyActorID(actor),
			Payload: ConfirmedPayload{
				Method:          enums.ConfirmationMethodDigitalLink,
				ConfirmedByName: name,
			},
			Timestamp: s.clock(),
		}}, nil
	})
}

func (s *service) AddPayment(ctx context.Context, actor Actor, recordID string, input AddPaymentInput) (result *CommandResult, err error) {
	ctx, finish := s.begin(ctx, CommandAddPayment, recordID, actor)
	defer func() { finish(err) }()

	if !actor.Authenticated || strings.TrimSpace(actor.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "logging a payment requires a signed-in user")
	}
	if err := validateAmount("amount", input.Amount); err != nil {
		return nil, err
	}
	date := strings.TrimSpace(input.Date)
	if date == "" {
		date = s.clock().UTC().Format(dateLayout)
	}
	if err := validateDate("date", date); err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(input.Reference)
	if err := checkLength("reference", reference, maxReferenceLength); err != nil {
		return nil, err
	}

	return s.execute(ctx, CommandAddPayment, recordID, func(view *RecordView) ([]Draft, error) {
		if !canLogPayment(actor, view) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the parties to a record can log payments")
		}
		if input.Amount.GreaterThan(view.RemainingAmount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds remaining amount").
				WithDetails(map[string]string{
					"amount":          input.Amount.String(),
					"remainingAmount": view.RemainingAmount.String(),
				})
		}
		now := s.clock()
		drafts := []Draft{{
			ActorID: actor.ID,
			Payload: PaymentAddedPayload{
				Amount:    input.Amount,
				Date:      date,
				Reference: reference,
			},
			Timestamp: now,
		}}
		if view.RemainingAmount.Sub(input.Amount).IsZero() {
			drafts = append(drafts, Draft{
				ActorID:   SystemActorID,
				Payload:   SettledPayload{},
				Timestamp: now,
			})
		}
		return drafts, nil
	})
}

func (s *service) RaiseDispute(ctx context.Context, actor Actor, recordID string, input DisputeInput) (result *CommandResult, err error) {
	ctx, finish := s.begin(ctx, CommandRaiseDispute, recordID, actor)
	defer func() { finish(err) }()

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, validationError("reason", "a dispute reason is required")
	}
	if err := checkLength("reason", reason, maxReasonLength); err != nil {
		return nil, err
	}

	return s.execute(ctx, CommandRaiseDispute, recordID, func(view *RecordView) ([]Draft, error) {
		return []Draft{{
			ActorID:   counterpartyActorID(actor),
			Payload:   DisputeRaisedPayload{Reason: reason},
			Timestamp: s.clock(),
		}}, nil
	})
}

// decideFunc turns the current view into the events a command appends.
type decideFunc func(view *RecordView) ([]Draft, error)

// execute runs load, verify, project, transition check, decide and append, and
// re-runs the whole sequence when the append loses a seq race.
func (s *service) execute(ctx context.Context, cmd Command, recordID string, decide decideFunc) (*CommandResult, error) {
	for attempt := 1; ; attempt++ {
		events, err := s.store.Load(ctx, recordID)
		if err != nil {
			return nil, err
		}
		view, err := s.verifiedProjection(ctx, recordID, events, "command")
		if err != nil {
			return nil, err
		}
		if err := CheckTransition(cmd, view); err != nil {
			return nil, err
		}
		drafts, err := decide(view)
		if err != nil {
			return nil, err
		}

		appended, err := s.store.Append(ctx, recordID, view.HeadSeq+1, drafts...)
		if err != nil {
			if IsConflict(err) && attempt < s.maxAttempts {
				s.metrics.IncConflictRetry(string(cmd))
				logCtx := s.logg.WithField(ctx, "attempt", attempt)
				s.logg.Warn(logCtx, "append lost seq race; retrying with fresh state")
				continue
			}
			return nil, err
		}

		next, err := Project(append(events, appended...))
		if err != nil {
			return nil, err
		}
		s.cache.Invalidate(ctx, recordID, view.Head())
		s.cache.Put(ctx, next)

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"seq":    next.HeadSeq,
			"status": next.Status,
		})
		s.logg.Info(logCtx, "record events appended")
		return resultFrom(next, appended), nil
	}
}

// verifiedProjection refuses to project a record whose chain does not verify.
func (s *service) verifiedProjection(ctx context.Context, recordID string, events []Event, source string) (*RecordView, error) {
	if len(events) == 0 {
		return nil, errRecordNotFound()
	}
	if err := VerifyChain(events); err != nil {
		integrity, ok := AsIntegrityError(err)
		if !ok {
			return nil, err
		}
		s.metrics.IncIntegrityFailure(source)
		s.logg.Error(s.logg.WithRecordID(ctx, recordID), "record chain failed verification", integrity)
		return nil, integrityFailure(integrity)
	}
	return Project(events)
}

func (s *service) begin(ctx context.Context, cmd Command, recordID string, actor Actor) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "ledger."+string(cmd))
	span.SetAttributes(
		attribute.String("ledger.record_id", recordID),
		attribute.Bool("ledger.actor_authenticated", actor.Authenticated),
	)
	ctx = s.logg.WithField(ctx, "command", string(cmd))
	if recordID != "" {
		ctx = s.logg.WithRecordID(ctx, recordID)
	}
	ctx = s.logg.WithActor(ctx, actorLabel(actor), actor.Authenticated)

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(pkgerrors.CodeInternal)
			if typed := pkgerrors.As(err); typed != nil {
				outcome = string(typed.Code())
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveCommand(string(cmd), outcome, time.Since(start))
		span.End()
	}
}

func resultFrom(view *RecordView, appended []Event) *CommandResult {
	return &CommandResult{
		RecordID:        view.RecordID,
		Status:          view.Status,
		RemainingAmount: view.RemainingAmount,
		Seq:             view.HeadSeq,
		Appended:        appended,
	}
}

func counterpartyActorID(actor Actor) string {
	if actor.Authenticated && actor.ID != "" {
		return actor.ID
	}
	return CounterpartyActorID
}

func actorLabel(actor Actor) string {
	if actor.Authenticated {
		return actor.ID
	}
	return CounterpartyActorID
}

func canLogPayment(actor Actor, view *RecordView) bool {
	if actor.ID == view.CreatorID {
		return true
	}
	contact := NormalizeContact(actor.Contact)
	return contact != "" && contact == view.CounterpartyContact
}
