package fiscal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cfdi/backend/internal/domain/shared"
)

// DocumentStatus is the lifecycle state shared by every fiscal document kind.
type DocumentStatus string

const (
	StatusDraft          DocumentStatus = "DRAFT_PENDING_ISSUANCE"
	StatusIssued         DocumentStatus = "ISSUED"
	StatusInCancellation DocumentStatus = "IN_CANCELLATION"
	StatusCancelled      DocumentStatus = "CANCELLED_BY_AUTHORITY"
	StatusRejected       DocumentStatus = "REJECTED"
)

// legacyStatus maps status values written by older deployments.
var legacyStatus = map[string]DocumentStatus{
	"BORRADOR":              StatusDraft,
	"PENDIENTE":             StatusDraft,
	"DRAFT":                 StatusDraft,
	"VIGENTE":               StatusIssued,
	"ACTIVO":                StatusIssued,
	"ACTIVE":                StatusIssued,
	"TIMBRADO":              StatusIssued,
	"EMITIDO":               StatusIssued,
	"EN_PROCESO":            StatusInCancellation,
	"EN_CANCELACION":        StatusInCancellation,
	"PENDIENTE_CANCELACION": StatusInCancellation,
	"CANCELADO":             StatusCancelled,
	"CANCELLED":             StatusCancelled,
	"RECHAZADO":             StatusRejected,
}

// IsValid checks if the status is a canonical DocumentStatus
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusInCancellation, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// String returns the string representation of DocumentStatus
func (s DocumentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is accepted.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRejected
}

// CanTransitionTo checks if the status can transition to the target status
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	switch s {
	case StatusDraft:
		return target == StatusIssued
	case StatusIssued:
		return target == StatusInCancellation
	case StatusInCancellation:
		return target == StatusCancelled || target == StatusRejected
	case StatusCancelled, StatusRejected:
		return false // Terminal states
	}
	return false
}

// StoredForms lists every physical value that means s: the canonical value
// followed by its legacy spellings. Guards on stored status use it.
func (s DocumentStatus) StoredForms() []string {
	forms := []string{string(s)}
	for raw, st := range legacyStatus {
		if st == s {
			forms = append(forms, raw)
		}
	}
	sort.Strings(forms[1:])
	return forms
}

// ParseStatus normalises a stored status value, accepting legacy spellings.
func ParseStatus(raw string) (DocumentStatus, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if s := DocumentStatus(key); s.IsValid() {
		return s, nil
	}
	if s, ok := legacyStatus[key]; ok {
		return s, nil
	}
	return "", shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Unrecognised document status %q", raw))
}
