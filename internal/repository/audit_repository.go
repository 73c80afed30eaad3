package repository

import (
	"context"
	"fmt"

	"github.com/imagingworks/pixels-dicom-connector/internal/database"
	"github.com/imagingworks/pixels-dicom-connector/internal/models"
)

// AuditRepository handles audit log database operations. All methods are
// no-ops when the audit database is disabled.
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if database.DB == nil {
		return nil
	}
	if err := database.DB.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// Recent retrieves the most recent audit logs
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if database.DB == nil {
		return nil, nil
	}
	var logs []models.AuditLog
	query := database.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}

// ByResourceUID retrieves audit logs for a specific resource
func (r *AuditRepository) ByResourceUID(ctx context.Context, resourceUID string) ([]models.AuditLog, error) {
	if database.DB == nil {
		return nil, nil
	}
	var logs []models.AuditLog
	if err := database.DB.WithContext(ctx).
		Where("resource_uid = ?", resourceUID).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}
