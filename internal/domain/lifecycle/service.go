// Package lifecycle implements the document state machine. Every mutating
// call serializes on the document, takes the shared resources it touches
// (cost layers, source lines, invoice balances) and runs its side effects in
// one transaction, so a failed transition leaves no partial state.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/lock"
	"docflow/internal/core/numerator"
	"docflow/internal/core/security"
	"docflow/internal/core/tx"
	"docflow/internal/core/types"
	"docflow/internal/domain"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
	"docflow/internal/domain/fulfillment"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/journal"
	"docflow/internal/domain/masterdata"
	"docflow/internal/domain/tax"
	"docflow/pkg/logger"
)

var tracer = otel.Tracer("docflow/lifecycle")

// Config wires the collaborators of the Service.
type Config struct {
	Repo       document.Repository
	Costing    *costing.Engine
	Tracker    *fulfillment.Tracker
	Reconciler *allocation.Reconciler
	Journal    journal.Poster
	MasterData masterdata.Provider
	Numerator  numerator.Generator
	TxManager  tx.Manager
	Locker     lock.Locker

	// Optional
	Tax              *tax.Calculator
	Policy           security.PostingPolicy
	Guards           *guard.Set
	Events           domain.EventPublisher
	Audit            audit.Logger
	NumberingOptions *numerator.Options
	NumberingConfig  func(transactionTypeCode string) numerator.Config
}

// Service is the document state machine.
type Service struct {
	repo       document.Repository
	costing    *costing.Engine
	tracker    *fulfillment.Tracker
	reconciler *allocation.Reconciler
	journal    journal.Poster
	masterData masterdata.Provider
	numerator  numerator.Generator
	txManager  tx.Manager
	locker     lock.Locker

	tax        *tax.Calculator
	policy     security.PostingPolicy
	guards     *guard.Set
	events     domain.EventPublisher
	audit      audit.Logger
	numberOpts *numerator.Options
	numberCfg  func(string) numerator.Config

	hooks *domain.HookRegistry[*document.Document]
}

// NewService creates a lifecycle service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:       cfg.Repo,
		costing:    cfg.Costing,
		tracker:    cfg.Tracker,
		reconciler: cfg.Reconciler,
		journal:    cfg.Journal,
		masterData: cfg.MasterData,
		numerator:  cfg.Numerator,
		txManager:  cfg.TxManager,
		locker:     cfg.Locker,
		tax:        cfg.Tax,
		policy:     cfg.Policy,
		guards:     cfg.Guards,
		events:     cfg.Events,
		audit:      cfg.Audit,
		numberOpts: cfg.NumberingOptions,
		numberCfg:  cfg.NumberingConfig,
		hooks:      domain.NewHookRegistry[*document.Document](),
	}
	if s.tax == nil {
		s.tax = tax.NewCalculator(tax.DefaultRate)
	}
	if s.policy == nil {
		s.policy = security.OpenPolicy{}
	}
	if s.numberOpts == nil {
		s.numberOpts = numerator.DefaultOptions()
	}
	if s.numberCfg == nil {
		s.numberCfg = numerator.DefaultConfig
	}
	return s
}

// Hooks returns the hook registry for external registration.
// Before-hooks run inside the transaction; after-hooks run once it committed.
func (s *Service) Hooks() *domain.HookRegistry[*document.Document] {
	return s.hooks
}

// Calculator returns the tax calculator used for derived totals.
func (s *Service) Calculator() *tax.Calculator {
	return s.tax
}

// GetByID retrieves a document with lines and allocations.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*document.Document, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, normalizeErr(err)
	}
	return doc, nil
}

// List retrieves documents with filtering.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*document.Document], error) {
	filter.Normalize()
	res, err := s.repo.List(ctx, filter)
	if err != nil {
		return res, normalizeErr(err)
	}
	return res, nil
}

// AverageCost returns the current weighted-average cost of an item at a
// location. An empty layer yields zero.
func (s *Service) AverageCost(ctx context.Context, itemID, locationID id.ID) (types.Money, error) {
	return s.costing.AverageCost(ctx, itemID, locationID)
}

// CostLayer returns quantity on hand and average cost of an item at a location.
func (s *Service) CostLayer(ctx context.Context, itemID, locationID id.ID) (costing.Layer, error) {
	return s.costing.Layer(ctx, itemID, locationID)
}

// Counters returns the fulfillment counters of a tracked source document.
func (s *Service) Counters(ctx context.Context, sourceID id.ID) ([]fulfillment.Counter, error) {
	return s.tracker.Counters(ctx, sourceID)
}

// OpenBalances lists invoices with outstanding > 0.
func (s *Service) OpenBalances(ctx context.Context, partnerID *id.ID, kind document.Kind) ([]allocation.Balance, error) {
	return s.reconciler.OpenBalances(ctx, partnerID, kind)
}

// SuggestAllocations proposes allocations of amount over the open invoices
// of partner that an allocatable kind may target, oldest first.
func (s *Service) SuggestAllocations(ctx context.Context, kind document.Kind, partnerID id.ID, amount types.Money) (allocation.Suggestion, error) {
	p, err := document.ProfileOf(kind)
	if err != nil {
		return allocation.Suggestion{}, err
	}
	if !p.Allocatable {
		return allocation.Suggestion{}, apperror.NewFieldValidation("kind", string(kind)+" cannot be allocated to invoices")
	}
	if amount.IsNegative() {
		return allocation.Suggestion{}, apperror.NewFieldValidation("amount", "amount must not be negative")
	}
	balances, err := s.reconciler.OpenBalances(ctx, &partnerID, p.AllocatesAgainst)
	if err != nil {
		return allocation.Suggestion{}, err
	}
	return allocation.SuggestFIFO(amount, balances), nil
}

// withDocLock serializes fn against every other mutating call on docID.
func (s *Service) withDocLock(ctx context.Context, docID id.ID, fn func(ctx context.Context) error) error {
	release, err := s.locker.Acquire(ctx, DocLockKey(docID))
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// DocLockKey is the lock key serializing transitions of one document.
func DocLockKey(docID id.ID) string {
	return fmt.Sprintf("doc:%s", docID)
}

func (s *Service) startSpan(ctx context.Context, action string, docID id.ID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lifecycle."+action,
		trace.WithAttributes(attribute.String("document.id", docID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// record publishes the domain event and writes the audit entry of a
// transition. Both run inside the caller's transaction. An empty action
// skips the audit entry.
func (s *Service) record(ctx context.Context, doc *document.Document, event string, action audit.Action, changes map[string]any) error {
	if s.events != nil {
		err := s.events.Publish(ctx, domain.DomainEvent{
			AggregateType: string(doc.Kind),
			AggregateID:   doc.ID,
			EventType:     event,
			Payload: map[string]any{
				"id":      doc.ID,
				"kind":    doc.Kind,
				"number":  doc.Number,
				"status":  doc.Status,
				"version": doc.Version,
			},
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", event, err)
		}
	}
	if s.audit != nil && action != "" {
		err := s.audit.Record(ctx, audit.Record{
			EntityType: string(doc.Kind),
			EntityID:   doc.ID,
			Action:     action,
			Changes:    changes,
			At:         time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("audit %s: %w", action, err)
		}
	}
	return nil
}

// runAfter executes after-hooks; the transition already committed, so
// failures are only logged.
func (s *Service) runAfter(ctx context.Context, event domain.HookEvent, doc *document.Document) {
	if err := s.hooks.Run(ctx, event, doc); err != nil {
		logger.Warn(ctx, "after hook failed", "event", event, "id", doc.ID, "error", err)
	}
}

// normalizeErr keeps AppErrors and maps anything else to an internal error.
func normalizeErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err)
}

// failed logs a rejected transition and normalizes its error. Invariant
// violations are programming errors and carry their full details.
func failed(ctx context.Context, action string, docID id.ID, err error) error {
	err = normalizeErr(err)
	switch {
	case apperror.IsInvariantViolation(err):
		appErr, _ := apperror.AsAppError(err)
		logger.Error(ctx, "invariant violation", "action", action, "id", docID, "error", err, "details", appErr.Details)
	case apperror.IsCollaboratorFailure(err), apperror.GetHTTPStatus(err) >= 500:
		logger.Error(ctx, "transition failed", "action", action, "id", docID, "error", err)
	default:
		logger.Debug(ctx, "transition rejected", "action", action, "id", docID, "error", err)
	}
	return err
}
