package fieldsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/sirupsen/logrus"
)

// defaultWindowHours is how far back the job sync looks when the trigger
// doesn't say.
const defaultWindowHours = 24

// JobSource is the slice of the Fieldline client the job sync needs.
type JobSource interface {
	BusinessUnits(ctx context.Context) ([]fieldline.BusinessUnit, error)
	CompletedJobs(ctx context.Context, completedOnOrAfter time.Time, businessUnitId int) ([]fieldline.Job, error)
	InvoicesByIDs(ctx context.Context, ids []int) ([]fieldline.Invoice, error)
	JobAttachments(ctx context.Context, jobId int) ([]fieldline.Attachment, error)
}

type JobStore interface {
	CreateSyncLog(ctx context.Context, syncLog *models.SyncLog) error
	FinalizeSyncLog(ctx context.Context, syncLog *models.SyncLog) error
	UpsertBusinessUnit(ctx context.Context, unit fieldline.BusinessUnit, seenAt time.Time) error
	ListEnabledBusinessUnits(ctx context.Context) ([]models.BusinessUnit, error)
	GetJobTicketByJobId(ctx context.Context, jobId int) (*models.JobTicket, error)
	CreateJobTicket(ctx context.Context, ticket *models.JobTicket) error
	UpdateJobTicketExternal(ctx context.Context, jobId int, updates map[string]interface{}) error
}

type JobSyncer struct {
	source JobSource
	store  JobStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewJobSyncer(source JobSource, store JobStore, logger *logrus.Logger) *JobSyncer {
	return &JobSyncer{
		source: source,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

type buFetchResult struct {
	unit models.BusinessUnit
	jobs []fieldline.Job
	err  error
}

// Run pulls jobs completed in the window for every enabled business unit,
// refreshes the BU registry, and upserts job tickets. DebriefStatus and the
// other debrief fields are never written here.
func (s *JobSyncer) Run(ctx context.Context, windowHours int, triggeredBy string) (Result, error) {
	if windowHours <= 0 {
		windowHours = defaultWindowHours
	}

	ctx, span := tracer.Start(ctx, "sync.jobs")
	defer span.End()

	syncLog := &models.SyncLog{
		SyncType:    models.SyncTypeJobs,
		Status:      models.SyncStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   s.now(),
	}
	if err := s.store.CreateSyncLog(ctx, syncLog); err != nil {
		return Result{}, fmt.Errorf("open sync log: %w", err)
	}

	result, runErr := s.run(ctx, windowHours)

	finishedAt := s.now()
	syncLog.FinishedAt = &finishedAt
	syncLog.RecordsProcessed = result.RecordsProcessed
	syncLog.RecordsCreated = result.RecordsCreated
	syncLog.RecordsUpdated = result.RecordsUpdated
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

func (s *JobSyncer) run(ctx context.Context, windowHours int) (Result, error) {
	var result Result
	since := s.now().Add(-time.Duration(windowHours) * time.Hour)

	// Refresh the BU registry first so newly created units are discovered
	// (disabled units stay disabled; IsEnabled is admin-owned).
	units, err := s.source.BusinessUnits(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch business units: %w", err)
	}
	seenAt := s.now()
	for _, unit := range units {
		if err := s.store.UpsertBusinessUnit(ctx, unit, seenAt); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("business unit %d: %v", unit.Id, err))
		}
	}

	enabled, err := s.store.ListEnabledBusinessUnits(ctx)
	if err != nil {
		return result, fmt.Errorf("list enabled business units: %w", err)
	}

	// Per-BU fetches run concurrently; a failed unit is logged and skipped,
	// the rest of the batch proceeds.
	results := make(chan buFetchResult, len(enabled))
	var wg sync.WaitGroup
	for _, unit := range enabled {
		wg.Add(1)
		go func(unit models.BusinessUnit) {
			defer wg.Done()
			jobs, err := s.source.CompletedJobs(ctx, since, unit.BusinessUnitId)
			results <- buFetchResult{unit: unit, jobs: jobs, err: err}
		}(unit)
	}
	wg.Wait()
	close(results)

	var jobs []fieldline.Job
	for r := range results {
		if r.err != nil {
			s.logger.WithFields(logrus.Fields{
				"businessUnitId": r.unit.BusinessUnitId,
				"businessUnit":   r.unit.Name,
			}).Warnf("completed jobs fetch failed: %v", r.err)
			result.Errors = append(result.Errors, fmt.Sprintf("business unit %d: %v", r.unit.BusinessUnitId, r.err))
			continue
		}
		jobs = append(jobs, r.jobs...)
	}
	// Channel drain order is scheduling-dependent; sort so runs are
	// reproducible.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Id < jobs[j].Id })

	invoicesByJob := s.fetchJobInvoices(ctx, jobs, &result)

	for _, job := range jobs {
		result.RecordsProcessed++
		if job.Id == 0 {
			result.Errors = append(result.Errors, "job missing id")
			continue
		}
		action, err := s.upsertJob(ctx, job, invoicesByJob[job.Id])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("job %d: %v", job.Id, err))
			continue
		}
		switch action {
		case upsertCreated:
			result.RecordsCreated++
		case upsertUpdated:
			result.RecordsUpdated++
		}
	}

	return result, nil
}

// fetchJobInvoices batch-loads the invoices referenced by the jobs. A failed
// batch degrades those tickets to zero invoice data rather than failing them.
func (s *JobSyncer) fetchJobInvoices(ctx context.Context, jobs []fieldline.Job, result *Result) map[int]*fieldline.Invoice {
	var ids []int
	seen := make(map[int]bool)
	for _, job := range jobs {
		if job.InvoiceId > 0 && !seen[job.InvoiceId] {
			seen[job.InvoiceId] = true
			ids = append(ids, job.InvoiceId)
		}
	}
	byJob := make(map[int]*fieldline.Invoice)
	if len(ids) == 0 {
		return byJob
	}

	invoices, err := s.source.InvoicesByIDs(ctx, ids)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("fetch job invoices: %v", err))
		return byJob
	}
	byId := make(map[int]*fieldline.Invoice, len(invoices))
	for i := range invoices {
		byId[invoices[i].Id] = &invoices[i]
	}
	for _, job := range jobs {
		if inv, ok := byId[job.InvoiceId]; ok {
			byJob[job.Id] = inv
		}
	}
	return byJob
}

func (s *JobSyncer) upsertJob(ctx context.Context, job fieldline.Job, invoice *fieldline.Invoice) (upsertAction, error) {
	ticket := models.JobTicket{
		JobId:            job.Id,
		JobNumber:        job.JobNumber,
		BusinessUnitId:   job.BusinessUnit.Id,
		BusinessUnitName: job.BusinessUnit.Name,
		JobTypeName:      job.JobType.Name,
		TechnicianName:   job.TechnicianName,
		CustomerId:       job.Customer.Id,
		CustomerName:     job.Customer.Name,
		CompletedAt:      parseTimeOrNil(job.CompletedOn),
		JobCategory:      jobCategoryFor(job.JobType.Name),
		TradeType:        tradeTypeFor(job.BusinessUnit.Name),
		CustomerSegment:  customerSegmentFor(job.BusinessUnit.Name),
	}
	if invoice != nil {
		ticket.InvoiceSummary = invoice.Summary
		ticket.InvoiceTotal = decimalFromNumber(invoice.Total)
		ticket.InvoiceBalance = decimalFromNumber(invoice.Balance)
		ticket.PaymentCollected = ticket.InvoiceBalance.IsZero() && !ticket.InvoiceTotal.IsZero()
	}

	// Attachment counts are best-effort; the debrief view shows "?" for -1.
	photos, forms, err := s.countAttachments(ctx, job.Id)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"jobId": job.Id}).Warnf("attachment count failed: %v", err)
	}
	ticket.PhotoCount = photos
	ticket.FormCount = forms

	existing, err := s.store.GetJobTicketByJobId(ctx, job.Id)
	if err != nil {
		return upsertSkipped, err
	}

	if existing == nil {
		ticket.DebriefStatus = models.DebriefStatusPending
		if err := s.store.CreateJobTicket(ctx, &ticket); err != nil {
			return upsertSkipped, err
		}
		return upsertCreated, nil
	}

	unchanged := existing.JobNumber == ticket.JobNumber &&
		existing.BusinessUnitId == ticket.BusinessUnitId &&
		existing.BusinessUnitName == ticket.BusinessUnitName &&
		existing.JobTypeName == ticket.JobTypeName &&
		existing.TechnicianName == ticket.TechnicianName &&
		existing.CustomerId == ticket.CustomerId &&
		existing.CustomerName == ticket.CustomerName &&
		existing.InvoiceSummary == ticket.InvoiceSummary &&
		existing.InvoiceTotal.Equal(ticket.InvoiceTotal) &&
		existing.InvoiceBalance.Equal(ticket.InvoiceBalance) &&
		existing.PaymentCollected == ticket.PaymentCollected &&
		existing.PhotoCount == ticket.PhotoCount &&
		existing.FormCount == ticket.FormCount &&
		timesEqual(existing.CompletedAt, ticket.CompletedAt) &&
		existing.JobCategory == ticket.JobCategory &&
		existing.TradeType == ticket.TradeType &&
		existing.CustomerSegment == ticket.CustomerSegment
	if unchanged {
		return upsertSkipped, nil
	}

	updates := map[string]interface{}{
		"job_number":         ticket.JobNumber,
		"business_unit_id":   ticket.BusinessUnitId,
		"business_unit_name": ticket.BusinessUnitName,
		"job_type_name":      ticket.JobTypeName,
		"technician_name":    ticket.TechnicianName,
		"customer_id":        ticket.CustomerId,
		"customer_name":      ticket.CustomerName,
		"invoice_summary":    ticket.InvoiceSummary,
		"invoice_total":      ticket.InvoiceTotal,
		"invoice_balance":    ticket.InvoiceBalance,
		"payment_collected":  ticket.PaymentCollected,
		"photo_count":        ticket.PhotoCount,
		"form_count":         ticket.FormCount,
		"completed_at":       ticket.CompletedAt,
		"job_category":       ticket.JobCategory,
		"trade_type":         ticket.TradeType,
		"customer_segment":   ticket.CustomerSegment,
	}
	if err := s.store.UpdateJobTicketExternal(ctx, job.Id, updates); err != nil {
		return upsertSkipped, err
	}
	return upsertUpdated, nil
}

func (s *JobSyncer) countAttachments(ctx context.Context, jobId int) (int, int, error) {
	attachments, err := s.source.JobAttachments(ctx, jobId)
	if err != nil {
		return -1, -1, err
	}
	photos, forms := 0, 0
	for _, att := range attachments {
		switch att.Type {
		case "photo":
			photos++
		case "form":
			forms++
		}
	}
	return photos, forms, nil
}
