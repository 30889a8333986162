package models

import (
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
)

// CancellationRequestModel is the persistence model for the cancellation
// audit trail.
type CancellationRequestModel struct {
	BaseModel
	Kind          fiscal.DocumentKind       `gorm:"type:varchar(30);not null"`
	ExternalID    string                    `gorm:"column:external_id;type:varchar(36);not null;index"`
	Reason        fiscal.CancellationReason `gorm:"type:varchar(2);not null"`
	ReplacementID string                    `gorm:"column:replacement_id;type:varchar(36)"`
	RequestedBy   string                    `gorm:"type:varchar(100)"`
	RequestedAt   time.Time                 `gorm:"not null;index"`
	Verdict       fiscal.Verdict            `gorm:"type:varchar(20)"`
	ResolvedAt    *time.Time
}

// TableName returns the table name for GORM
func (CancellationRequestModel) TableName() string {
	return "cancellation_requests"
}

// ToDomain converts the persistence model to a domain CancellationRequest.
func (m *CancellationRequestModel) ToDomain() *fiscal.CancellationRequest {
	return &fiscal.CancellationRequest{
		BaseEntity:    m.BaseModel.ToDomain(),
		Kind:          m.Kind,
		ExternalID:    m.ExternalID,
		Reason:        m.Reason,
		ReplacementID: m.ReplacementID,
		RequestedBy:   m.RequestedBy,
		RequestedAt:   m.RequestedAt,
		Verdict:       m.Verdict,
		ResolvedAt:    m.ResolvedAt,
	}
}

// CancellationRequestModelFromDomain creates a persistence model from the domain entity.
func CancellationRequestModelFromDomain(r *fiscal.CancellationRequest) *CancellationRequestModel {
	m := &CancellationRequestModel{
		Kind:          r.Kind,
		ExternalID:    r.ExternalID,
		Reason:        r.Reason,
		ReplacementID: r.ReplacementID,
		RequestedBy:   r.RequestedBy,
		RequestedAt:   r.RequestedAt,
		Verdict:       r.Verdict,
		ResolvedAt:    r.ResolvedAt,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}
