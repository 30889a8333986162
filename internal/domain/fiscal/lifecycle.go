package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/cfdi/backend/internal/domain/shared"
)

// Verdict is the certifying authority's answer to a cancellation request.
type Verdict string

const (
	VerdictAccepted Verdict = "ACCEPTED"
	VerdictRejected Verdict = "REJECTED"
)

var verdictAliases = map[string]Verdict{
	"ACCEPTED":  VerdictAccepted,
	"ACEPTADA":  VerdictAccepted,
	"CANCELADO": VerdictAccepted,
	"CANCELLED": VerdictAccepted,
	"REJECTED":  VerdictRejected,
	"RECHAZADA": VerdictRejected,
	"RECHAZADO": VerdictRejected,
}

// ParseVerdict normalises a verdict sent by the authority.
func ParseVerdict(raw string) (Verdict, error) {
	if v, ok := verdictAliases[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return v, nil
	}
	return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown cancellation verdict %q", raw))
}

// Outcome is the terminal status the verdict leads to.
func (v Verdict) Outcome() DocumentStatus {
	if v == VerdictAccepted {
		return StatusCancelled
	}
	return StatusRejected
}

// GraceWindow bounds when an issued document may still be cancelled: until
// the end of its fiscal year, extended through January for documents issued
// in December. Dates are evaluated in the fiscal time zone.
type GraceWindow struct {
	loc *time.Location
}

// NewGraceWindow creates a window evaluated in loc (UTC when nil).
func NewGraceWindow(loc *time.Location) GraceWindow {
	if loc == nil {
		loc = time.UTC
	}
	return GraceWindow{loc: loc}
}

// Deadline is the first instant at which cancellation is no longer allowed.
func (g GraceWindow) Deadline(issuedAt time.Time) time.Time {
	issued := issuedAt.In(g.location())
	if issued.Month() == time.December {
		return time.Date(issued.Year()+1, time.February, 1, 0, 0, 0, 0, g.location())
	}
	return time.Date(issued.Year()+1, time.January, 1, 0, 0, 0, 0, g.location())
}

// Allows reports whether a document issued at issuedAt may be cancelled at now.
func (g GraceWindow) Allows(issuedAt, now time.Time) bool {
	return now.Before(g.Deadline(issuedAt))
}

func (g GraceWindow) location() *time.Location {
	if g.loc == nil {
		return time.UTC
	}
	return g.loc
}

// RequestCancellation validates ISSUED -> IN_CANCELLATION.
func RequestCancellation(current DocumentStatus, issuedAt, now time.Time, window GraceWindow) error {
	switch {
	case current.IsTerminal():
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel document in terminal status %s", current))
	case current == StatusInCancellation:
		return shared.NewDomainError("INVALID_STATE", "Cancellation is already in progress")
	case !current.CanTransitionTo(StatusInCancellation):
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel document in %s status", current))
	case issuedAt.IsZero():
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel document without a known issue date")
	case !window.Allows(issuedAt, now):
		return shared.NewDomainError("GRACE_WINDOW_EXPIRED",
			fmt.Sprintf("Cancellation window closed on %s", window.Deadline(issuedAt).Format("2006-01-02")))
	}
	return nil
}

// ApplyVerdict validates IN_CANCELLATION -> CANCELLED_BY_AUTHORITY | REJECTED.
// Replaying the verdict a document already reflects is a no-op.
func ApplyVerdict(current DocumentStatus, v Verdict) (next DocumentStatus, noop bool, err error) {
	target := v.Outcome()
	switch {
	case current == target:
		return current, true, nil
	case current.IsTerminal():
		return current, false, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Document is already %s, cannot apply %s verdict", current, v))
	case !current.CanTransitionTo(target):
		return current, false, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("No cancellation in progress for document in %s status", current))
	}
	return target, false, nil
}
