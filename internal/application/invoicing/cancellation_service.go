package invoicing

import (
	"context"
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/lock"
	"github.com/cfdi/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CancellationService drives documents through cancellation: the request
// inside the grace window and the authority verdict callback.
type CancellationService struct {
	states  fiscal.StatusStore
	audits  fiscal.CancellationStore
	locker  lock.Locker
	window  fiscal.GraceWindow
	lockTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// CancellationOption configures a CancellationService
type CancellationOption func(*CancellationService)

// WithCancellationClock overrides the clock
func WithCancellationClock(now func() time.Time) CancellationOption {
	return func(s *CancellationService) {
		s.now = now
	}
}

// WithCancellationLogger sets the logger
func WithCancellationLogger(logger *zap.Logger) CancellationOption {
	return func(s *CancellationService) {
		s.logger = logger
	}
}

// WithCancellationLockTTL sets the lifetime of the per-document lock
func WithCancellationLockTTL(ttl time.Duration) CancellationOption {
	return func(s *CancellationService) {
		s.lockTTL = ttl
	}
}

// NewCancellationService creates a new CancellationService
func NewCancellationService(
	states fiscal.StatusStore,
	audits fiscal.CancellationStore,
	locker lock.Locker,
	window fiscal.GraceWindow,
	opts ...CancellationOption,
) *CancellationService {
	s := &CancellationService{
		states:  states,
		audits:  audits,
		locker:  locker,
		window:  window,
		lockTTL: 30 * time.Second,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCancellation moves an issued document to IN_CANCELLATION and
// records the request in the audit trail.
func (s *CancellationService) RequestCancellation(ctx context.Context, kind fiscal.DocumentKind, externalID string, req CancelDocumentRequest) (resp *CancellationResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "request",
		telemetry.WithAttribute(telemetry.SpanAttrKind, kind.String()),
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, externalID))
	defer func() { telemetry.EndSpan(span, err) }()

	id, err := fiscal.NormalizeExternalID(externalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	audit, err := fiscal.NewCancellationRequest(kind, id, fiscal.CancellationReason(req.Reason), req.ReplacementID, req.RequestedBy, now)
	if err != nil {
		return nil, err
	}

	release, err := s.obtain(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.states.LoadState(ctx, kind, id)
	if err != nil {
		return nil, translateError(err)
	}
	if err := fiscal.RequestCancellation(state.Status, state.IssuedAt, now, s.window); err != nil {
		return nil, err
	}

	changed, err := s.states.CompareAndSetStatus(ctx, kind, id, []fiscal.DocumentStatus{fiscal.StatusIssued}, fiscal.StatusInCancellation, now)
	if err != nil {
		return nil, translateError(err)
	}
	if !changed {
		return nil, shared.NewDomainError("CONCURRENCY_CONFLICT", "Document status changed while requesting cancellation")
	}

	if err := s.audits.Create(ctx, audit); err != nil {
		// the status already moved; the callback can still find the document by probing
		s.logger.Error("Cancellation requested but audit record was not stored",
			zap.String("kind", kind.String()),
			zap.String("external_id", id),
			zap.Error(err),
		)
	}

	s.logger.Info("Cancellation requested",
		zap.String("kind", kind.String()),
		zap.String("external_id", id),
		zap.String("reason", req.Reason),
	)
	return &CancellationResponse{
		RequestID:   audit.ID.String(),
		Kind:        kind,
		ExternalID:  id,
		Status:      fiscal.StatusInCancellation,
		RequestedAt: now,
		Deadline:    s.window.Deadline(state.IssuedAt),
	}, nil
}

// HandleCallback applies the authority's verdict. Receiving the verdict a
// document already reflects succeeds without changing anything.
func (s *CancellationService) HandleCallback(ctx context.Context, req CallbackRequest) (resp *CallbackResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "callback",
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, req.ExternalID),
		telemetry.WithAttribute(telemetry.SpanAttrVerdict, req.Verdict))
	defer func() { telemetry.EndSpan(span, err) }()

	id, err := fiscal.NormalizeExternalID(req.ExternalID)
	if err != nil {
		return nil, err
	}
	verdict, err := fiscal.ParseVerdict(req.Verdict)
	if err != nil {
		return nil, err
	}

	audit, err := s.audits.FindLatest(ctx, id)
	if err != nil && !isNotFound(err) {
		return nil, translateError(err)
	}
	if isNotFound(err) {
		audit = nil
	}

	kinds := fiscal.AllKinds
	if audit != nil {
		kinds = []fiscal.DocumentKind{audit.Kind}
	}
	state, err := s.locate(ctx, id, kinds)
	if err != nil {
		return nil, err
	}

	release, err := s.obtain(ctx, state.Kind, id)
	if err != nil {
		return nil, err
	}
	defer release()

	// re-read under the lock
	state, err = s.states.LoadState(ctx, state.Kind, id)
	if err != nil {
		return nil, translateError(err)
	}

	next, noop, err := fiscal.ApplyVerdict(state.Status, verdict)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if noop {
		s.logger.Info("Cancellation verdict already applied",
			zap.String("external_id", id),
			zap.String("status", state.Status.String()),
		)
		s.resolveAudit(ctx, audit, verdict, now)
		telemetry.SetAttribute(span, telemetry.SpanAttrReplayed, true)
		return &CallbackResponse{Kind: state.Kind, ExternalID: id, Status: state.Status, Replayed: true}, nil
	}

	changed, err := s.states.CompareAndSetStatus(ctx, state.Kind, id, []fiscal.DocumentStatus{fiscal.StatusInCancellation}, next, now)
	if err != nil {
		return nil, translateError(err)
	}
	if !changed {
		return nil, shared.NewDomainError("CONCURRENCY_CONFLICT", "Document status changed while applying the verdict")
	}
	s.resolveAudit(ctx, audit, verdict, now)

	s.logger.Info("Cancellation verdict applied",
		zap.String("kind", state.Kind.String()),
		zap.String("external_id", id),
		zap.String("status", next.String()),
	)
	return &CallbackResponse{Kind: state.Kind, ExternalID: id, Status: next}, nil
}

// locate finds which kind's primary table holds the document.
func (s *CancellationService) locate(ctx context.Context, id string, kinds []fiscal.DocumentKind) (*fiscal.DocumentState, error) {
	var lastErr error
	for _, kind := range kinds {
		state, err := s.states.LoadState(ctx, kind, id)
		if err == nil {
			return state, nil
		}
		if !isNotFound(err) {
			s.logger.Debug("Document kind lookup failed",
				zap.String("kind", kind.String()),
				zap.String("external_id", id),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil && len(kinds) == 1 {
		return nil, translateError(lastErr)
	}
	return nil, shared.NewDomainError("NOT_FOUND", "Document "+id+" not found")
}

func (s *CancellationService) resolveAudit(ctx context.Context, audit *fiscal.CancellationRequest, v fiscal.Verdict, at time.Time) {
	if audit == nil || !audit.IsOpen() {
		return
	}
	audit.Resolve(v, at)
	if err := s.audits.Save(ctx, audit); err != nil {
		s.logger.Error("Verdict applied but audit record was not updated",
			zap.String("external_id", audit.ExternalID),
			zap.Error(err),
		)
	}
}

func (s *CancellationService) obtain(ctx context.Context, kind fiscal.DocumentKind, id string) (func(), error) {
	lease, err := s.locker.Obtain(ctx, lock.DocumentKey(kind.String(), id), s.lockTTL)
	if err != nil {
		return nil, translateError(err)
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release document lock", zap.String("external_id", id), zap.Error(err))
		}
	}, nil
}
