package persistence

import (
	"context"
	"errors"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCancellationRepository implements fiscal.CancellationStore using GORM
type GormCancellationRepository struct {
	db *gorm.DB
}

// NewGormCancellationRepository creates a new GormCancellationRepository
func NewGormCancellationRepository(db *gorm.DB) *GormCancellationRepository {
	return &GormCancellationRepository{db: db}
}

// Create stores a new cancellation request
func (r *GormCancellationRepository) Create(ctx context.Context, req *fiscal.CancellationRequest) error {
	return r.db.WithContext(ctx).Create(models.CancellationRequestModelFromDomain(req)).Error
}

// FindLatest returns the most recent request for a document
func (r *GormCancellationRepository) FindLatest(ctx context.Context, externalID string) (*fiscal.CancellationRequest, error) {
	var model models.CancellationRequestModel
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("requested_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save updates the verdict of an existing request
func (r *GormCancellationRepository) Save(ctx context.Context, req *fiscal.CancellationRequest) error {
	model := models.CancellationRequestModelFromDomain(req)
	result := r.db.WithContext(ctx).
		Model(&models.CancellationRequestModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"verdict":     model.Verdict,
			"resolved_at": model.ResolvedAt,
			"updated_at":  model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
