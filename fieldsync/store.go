package fieldsync

import (
	"context"
	"errors"
	"time"

	"github.com/hearthside/fieldops_backend/config"
	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/models"
	"gorm.io/gorm"
)

// GormStore implements InvoiceStore and JobStore over the shared MySQL
// connection. A nil db resolves to the shared connection at call time, so the
// store can be wired before the database finishes connecting; the readiness
// gate keeps requests out until it exists.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	if s.db != nil {
		return s.db.WithContext(ctx)
	}
	return config.GetDB().WithContext(ctx)
}

func (s *GormStore) CreateSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	return s.conn(ctx).Create(syncLog).Error
}

func (s *GormStore) FinalizeSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	return s.conn(ctx).Model(syncLog).Updates(map[string]interface{}{
		"status":            syncLog.Status,
		"finished_at":       syncLog.FinishedAt,
		"records_processed": syncLog.RecordsProcessed,
		"records_created":   syncLog.RecordsCreated,
		"records_updated":   syncLog.RecordsUpdated,
		"records_closed":    syncLog.RecordsClosed,
		"errors_json":       syncLog.ErrorsJSON,
	}).Error
}

func (s *GormStore) GetArInvoiceByInvoiceId(ctx context.Context, invoiceId int) (*models.ArInvoice, error) {
	var invoice models.ArInvoice
	err := s.conn(ctx).Where("invoice_id = ?", invoiceId).Take(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *GormStore) CreateArInvoice(ctx context.Context, invoice *models.ArInvoice) error {
	return s.conn(ctx).Create(invoice).Error
}

func (s *GormStore) UpdateArInvoiceExternal(ctx context.Context, invoiceId int, updates map[string]interface{}) error {
	return s.conn(ctx).
		Model(&models.ArInvoice{}).
		Where("invoice_id = ?", invoiceId).
		Updates(updates).Error
}

// EnsureOwnership creates the dependent tracking row if it's missing.
// Lookup-before-create keeps it idempotent across partial failures.
func (s *GormStore) EnsureOwnership(ctx context.Context, invoiceId int) error {
	var ownership models.InvoiceOwnership
	err := s.conn(ctx).Where("invoice_id = ?", invoiceId).Take(&ownership).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.conn(ctx).Create(&models.InvoiceOwnership{
		InvoiceId:       invoiceId,
		OwnershipBucket: models.OwnershipBucketUnassigned,
	}).Error
}

func (s *GormStore) ListOpenInvoiceIds(ctx context.Context) ([]int, error) {
	var ids []int
	err := s.conn(ctx).
		Model(&models.ArInvoice{}).
		Where("status = ?", models.InvoiceStatusOpen).
		Pluck("invoice_id", &ids).Error
	return ids, err
}

// CloseArInvoice marks a mirror row settled: status paid, balance zero.
// Locally-owned fields are untouched and the row is never deleted.
func (s *GormStore) CloseArInvoice(ctx context.Context, invoiceId int) error {
	return s.conn(ctx).
		Model(&models.ArInvoice{}).
		Where("invoice_id = ?", invoiceId).
		Updates(map[string]interface{}{
			"status":  models.InvoiceStatusPaid,
			"balance": 0,
		}).Error
}

func (s *GormStore) UpsertBusinessUnit(ctx context.Context, unit fieldline.BusinessUnit, seenAt time.Time) error {
	var existing models.BusinessUnit
	err := s.conn(ctx).Where("business_unit_id = ?", unit.Id).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.conn(ctx).Create(&models.BusinessUnit{
			BusinessUnitId: unit.Id,
			Name:           unit.Name,
			IsEnabled:      true,
			DiscoveredAt:   seenAt,
			LastSeenAt:     seenAt,
		}).Error
	}
	if err != nil {
		return err
	}
	return s.conn(ctx).Model(&existing).Updates(map[string]interface{}{
		"name":         unit.Name,
		"last_seen_at": seenAt,
	}).Error
}

func (s *GormStore) ListEnabledBusinessUnits(ctx context.Context) ([]models.BusinessUnit, error) {
	var units []models.BusinessUnit
	err := s.conn(ctx).
		Where("is_enabled = ?", true).
		Order("business_unit_id").
		Find(&units).Error
	return units, err
}

func (s *GormStore) GetJobTicketByJobId(ctx context.Context, jobId int) (*models.JobTicket, error) {
	var ticket models.JobTicket
	err := s.conn(ctx).Where("job_id = ?", jobId).Take(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (s *GormStore) CreateJobTicket(ctx context.Context, ticket *models.JobTicket) error {
	return s.conn(ctx).Create(ticket).Error
}

func (s *GormStore) UpdateJobTicketExternal(ctx context.Context, jobId int, updates map[string]interface{}) error {
	return s.conn(ctx).
		Model(&models.JobTicket{}).
		Where("job_id = ?", jobId).
		Updates(updates).Error
}
