package fieldsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fieldops-backend/fieldsync")

// Result is the summary a sync run returns; trigger endpoints serialize it
// as-is.
type Result struct {
	Success          bool     `json:"success"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsCreated   int      `json:"records_created"`
	RecordsUpdated   int      `json:"records_updated"`
	RecordsClosed    int      `json:"records_closed"`
	Errors           []string `json:"errors"`
}

// InvoiceSource is the slice of the Fieldline client the invoice sync needs.
type InvoiceSource interface {
	OpenInvoices(ctx context.Context) ([]fieldline.Invoice, error)
}

// InvoiceStore is the persistence seam for the invoice sync. The gorm
// implementation lives in store.go; tests substitute an in-memory fake.
type InvoiceStore interface {
	CreateSyncLog(ctx context.Context, syncLog *models.SyncLog) error
	FinalizeSyncLog(ctx context.Context, syncLog *models.SyncLog) error
	GetArInvoiceByInvoiceId(ctx context.Context, invoiceId int) (*models.ArInvoice, error)
	CreateArInvoice(ctx context.Context, invoice *models.ArInvoice) error
	UpdateArInvoiceExternal(ctx context.Context, invoiceId int, updates map[string]interface{}) error
	EnsureOwnership(ctx context.Context, invoiceId int) error
	ListOpenInvoiceIds(ctx context.Context) ([]int, error)
	CloseArInvoice(ctx context.Context, invoiceId int) error
}

type InvoiceSyncer struct {
	source InvoiceSource
	store  InvoiceStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewInvoiceSyncer(source InvoiceSource, store InvoiceStore, logger *logrus.Logger) *InvoiceSyncer {
	return &InvoiceSyncer{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes one invoice reconciliation. Per-record failures are collected
// and never abort the batch; fetch or log failures abort the run and finalize
// the log row as failed. Re-running against unchanged upstream data writes
// nothing and reports zero created/updated.
func (s *InvoiceSyncer) Run(ctx context.Context, triggeredBy string) (Result, error) {
	ctx, span := tracer.Start(ctx, "sync.invoices")
	defer span.End()

	syncLog := &models.SyncLog{
		SyncType:    models.SyncTypeInvoices,
		Status:      models.SyncStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   s.now(),
	}
	if err := s.store.CreateSyncLog(ctx, syncLog); err != nil {
		return Result{}, fmt.Errorf("open sync log: %w", err)
	}

	result, runErr := s.run(ctx, syncLog)

	finishedAt := s.now()
	syncLog.FinishedAt = &finishedAt
	syncLog.RecordsProcessed = result.RecordsProcessed
	syncLog.RecordsCreated = result.RecordsCreated
	syncLog.RecordsUpdated = result.RecordsUpdated
	syncLog.RecordsClosed = result.RecordsClosed
	if runErr != nil {
		syncLog.Status = models.SyncStatusFailed
		syncLog.SetErrors(append(result.Errors, runErr.Error()))
	} else {
		syncLog.Status = models.SyncStatusCompleted
		syncLog.SetErrors(result.Errors)
	}
	if err := s.store.FinalizeSyncLog(ctx, syncLog); err != nil {
		logFinalizeError(s.logger, syncLog, err)
	}

	if runErr != nil {
		return result, runErr
	}
	result.Success = true
	return result, nil
}

func (s *InvoiceSyncer) run(ctx context.Context, syncLog *models.SyncLog) (Result, error) {
	var result Result

	invoices, err := s.source.OpenInvoices(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch open invoices: %w", err)
	}

	observed := make(map[int]bool, len(invoices))
	for _, inv := range invoices {
		result.RecordsProcessed++
		if inv.Id == 0 {
			result.Errors = append(result.Errors, "invoice missing id")
			continue
		}
		observed[inv.Id] = true

		action, err := s.upsertInvoice(ctx, inv)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("invoice %d: %v", inv.Id, err))
			continue
		}
		switch action {
		case upsertCreated:
			result.RecordsCreated++
		case upsertUpdated:
			result.RecordsUpdated++
		}
	}

	// Close-by-absence: every previously-open mirror row not in this fetch is
	// settled upstream. Rows are never deleted.
	openIds, err := s.store.ListOpenInvoiceIds(ctx)
	if err != nil {
		return result, fmt.Errorf("list open mirror rows: %w", err)
	}
	for _, id := range openIds {
		if observed[id] {
			continue
		}
		if err := s.store.CloseArInvoice(ctx, id); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("close invoice %d: %v", id, err))
			continue
		}
		result.RecordsClosed++
	}

	return result, nil
}

type upsertAction int

const (
	upsertSkipped upsertAction = iota
	upsertCreated
	upsertUpdated
)

func (s *InvoiceSyncer) upsertInvoice(ctx context.Context, inv fieldline.Invoice) (upsertAction, error) {
	total := decimalFromNumber(inv.Total)
	balance := decimalFromNumber(inv.Balance)
	invoiceDate := parseTimeOrNil(inv.InvoicedOn)

	bucket := agingBucketFor(invoiceDate, s.now())
	trade := tradeTypeFor(inv.BusinessUnit.Name)
	segment := customerSegmentFor(inv.BusinessUnit.Name)
	status := statusFor(balance)

	existing, err := s.store.GetArInvoiceByInvoiceId(ctx, inv.Id)
	if err != nil {
		return upsertSkipped, err
	}

	if existing == nil {
		row := &models.ArInvoice{
			InvoiceId:        inv.Id,
			InvoiceNumber:    inv.Number,
			CustomerId:       inv.Customer.Id,
			CustomerName:     inv.Customer.Name,
			BusinessUnitId:   inv.BusinessUnit.Id,
			BusinessUnitName: inv.BusinessUnit.Name,
			InvoiceDate:      invoiceDate,
			Total:            total,
			Balance:          balance,
			AgingBucket:      bucket,
			TradeType:        trade,
			CustomerSegment:  segment,
			Status:           status,
			WorkflowStatus:   models.WorkflowStatusNew,
		}
		if err := s.store.CreateArInvoice(ctx, row); err != nil {
			return upsertSkipped, err
		}
		if err := s.store.EnsureOwnership(ctx, inv.Id); err != nil {
			return upsertSkipped, fmt.Errorf("ownership row: %w", err)
		}
		return upsertCreated, nil
	}

	// The ownership row is normally created with the mirror row; re-checking
	// here lets a run that died between the two writes converge.
	if err := s.store.EnsureOwnership(ctx, inv.Id); err != nil {
		return upsertSkipped, fmt.Errorf("ownership row: %w", err)
	}

	if !existing.Status.CanTransition(status) {
		return upsertSkipped, fmt.Errorf("invalid status transition %s -> %s", existing.Status, status)
	}

	// Only externally-sourced and derived fields; OwnerId, WorkflowStatus,
	// Notes and PromisedDate belong to the dashboard.
	unchanged := existing.InvoiceNumber == inv.Number &&
		existing.CustomerId == inv.Customer.Id &&
		existing.CustomerName == inv.Customer.Name &&
		existing.BusinessUnitId == inv.BusinessUnit.Id &&
		existing.BusinessUnitName == inv.BusinessUnit.Name &&
		timesEqual(existing.InvoiceDate, invoiceDate) &&
		existing.Total.Equal(total) &&
		existing.Balance.Equal(balance) &&
		existing.AgingBucket == bucket &&
		existing.TradeType == trade &&
		existing.CustomerSegment == segment &&
		existing.Status == status
	if unchanged {
		return upsertSkipped, nil
	}

	updates := map[string]interface{}{
		"invoice_number":     inv.Number,
		"customer_id":        inv.Customer.Id,
		"customer_name":      inv.Customer.Name,
		"business_unit_id":   inv.BusinessUnit.Id,
		"business_unit_name": inv.BusinessUnit.Name,
		"invoice_date":       invoiceDate,
		"total":              total,
		"balance":            balance,
		"aging_bucket":       bucket,
		"trade_type":         trade,
		"customer_segment":   segment,
		"status":             status,
	}
	if err := s.store.UpdateArInvoiceExternal(ctx, inv.Id, updates); err != nil {
		return upsertSkipped, err
	}
	return upsertUpdated, nil
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func logFinalizeError(logger *logrus.Logger, syncLog *models.SyncLog, err error) {
	logger.WithFields(logrus.Fields{
		"syncType": syncLog.SyncType,
		"logId":    syncLog.ID,
	}).Errorf("failed to finalize sync log: %v", err)
}
