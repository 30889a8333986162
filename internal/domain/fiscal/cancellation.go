package fiscal

import (
	"fmt"
	"time"

	"github.com/cfdi/backend/internal/domain/shared"
)

// CancellationReason is the SAT cancellation motive code.
type CancellationReason string

const (
	ReasonErrorsWithRelation    CancellationReason = "01" // issued with errors, replaced by another document
	ReasonErrorsWithoutRelation CancellationReason = "02"
	ReasonOperationNotCompleted CancellationReason = "03"
	ReasonGlobalInvoiceRelated  CancellationReason = "04"
)

// IsValid checks if the reason code is known
func (r CancellationReason) IsValid() bool {
	switch r {
	case ReasonErrorsWithRelation, ReasonErrorsWithoutRelation, ReasonOperationNotCompleted, ReasonGlobalInvoiceRelated:
		return true
	}
	return false
}

// CancellationRequest is the audit record of one cancellation attempt.
type CancellationRequest struct {
	shared.BaseEntity
	Kind          DocumentKind
	ExternalID    string
	Reason        CancellationReason
	ReplacementID string
	RequestedBy   string
	RequestedAt   time.Time
	Verdict       Verdict
	ResolvedAt    *time.Time
}

// NewCancellationRequest validates and creates a request.
func NewCancellationRequest(kind DocumentKind, externalID string, reason CancellationReason, replacementID, requestedBy string, at time.Time) (*CancellationRequest, error) {
	if !reason.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown cancellation reason %q", reason))
	}
	if reason == ReasonErrorsWithRelation {
		if replacementID == "" {
			return nil, shared.NewDomainError("INVALID_INPUT", "Reason 01 requires the replacement document UUID")
		}
		id, err := NormalizeExternalID(replacementID)
		if err != nil {
			return nil, err
		}
		if id == externalID {
			return nil, shared.NewDomainError("INVALID_INPUT", "A document cannot replace itself")
		}
		replacementID = id
	} else {
		replacementID = ""
	}
	return &CancellationRequest{
		BaseEntity:    shared.NewBaseEntity(),
		Kind:          kind,
		ExternalID:    externalID,
		Reason:        reason,
		ReplacementID: replacementID,
		RequestedBy:   requestedBy,
		RequestedAt:   at,
	}, nil
}

// Resolve records the authority verdict.
func (c *CancellationRequest) Resolve(v Verdict, at time.Time) {
	c.Verdict = v
	c.ResolvedAt = &at
	c.Touch(at)
}

// IsOpen reports whether no verdict has been recorded yet.
func (c *CancellationRequest) IsOpen() bool {
	return c.ResolvedAt == nil
}
