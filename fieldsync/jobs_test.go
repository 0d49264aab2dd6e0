package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

type fakeJobSource struct {
	units          []fieldline.BusinessUnit
	unitsErr       error
	jobsByUnit     map[int][]fieldline.Job
	jobsErrByUnit  map[int]error
	invoices       []fieldline.Invoice
	invoicesErr    error
	attachments    map[int][]fieldline.Attachment
	attachmentsErr error
}

func (f *fakeJobSource) BusinessUnits(ctx context.Context) ([]fieldline.BusinessUnit, error) {
	return f.units, f.unitsErr
}

func (f *fakeJobSource) CompletedJobs(ctx context.Context, completedOnOrAfter time.Time, businessUnitId int) ([]fieldline.Job, error) {
	if err := f.jobsErrByUnit[businessUnitId]; err != nil {
		return nil, err
	}
	return f.jobsByUnit[businessUnitId], nil
}

func (f *fakeJobSource) InvoicesByIDs(ctx context.Context, ids []int) ([]fieldline.Invoice, error) {
	return f.invoices, f.invoicesErr
}

func (f *fakeJobSource) JobAttachments(ctx context.Context, jobId int) ([]fieldline.Attachment, error) {
	if f.attachmentsErr != nil {
		return nil, f.attachmentsErr
	}
	return f.attachments[jobId], nil
}

type fakeJobStore struct {
	units     map[int]*models.BusinessUnit
	tickets   map[int]*models.JobTicket
	logs      []*models.SyncLog
	finalized int
	creates   int
	updates   int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		units:   map[int]*models.BusinessUnit{},
		tickets: map[int]*models.JobTicket{},
	}
}

func (f *fakeJobStore) CreateSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	syncLog.ID = uint(len(f.logs) + 1)
	f.logs = append(f.logs, syncLog)
	return nil
}

func (f *fakeJobStore) FinalizeSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	f.finalized++
	return nil
}

func (f *fakeJobStore) UpsertBusinessUnit(ctx context.Context, unit fieldline.BusinessUnit, seenAt time.Time) error {
	if existing, ok := f.units[unit.Id]; ok {
		existing.Name = unit.Name
		existing.LastSeenAt = seenAt
		return nil
	}
	f.units[unit.Id] = &models.BusinessUnit{
		BusinessUnitId: unit.Id,
		Name:           unit.Name,
		IsEnabled:      true,
		DiscoveredAt:   seenAt,
		LastSeenAt:     seenAt,
	}
	return nil
}

func (f *fakeJobStore) ListEnabledBusinessUnits(ctx context.Context) ([]models.BusinessUnit, error) {
	var enabled []models.BusinessUnit
	for _, unit := range f.units {
		if unit.IsEnabled {
			enabled = append(enabled, *unit)
		}
	}
	return enabled, nil
}

func (f *fakeJobStore) GetJobTicketByJobId(ctx context.Context, jobId int) (*models.JobTicket, error) {
	if ticket, ok := f.tickets[jobId]; ok {
		copied := *ticket
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeJobStore) CreateJobTicket(ctx context.Context, ticket *models.JobTicket) error {
	f.creates++
	copied := *ticket
	f.tickets[ticket.JobId] = &copied
	return nil
}

func (f *fakeJobStore) UpdateJobTicketExternal(ctx context.Context, jobId int, updates map[string]interface{}) error {
	f.updates++
	ticket := f.tickets[jobId]
	if ticket == nil {
		return errors.New("row missing")
	}
	for column := range updates {
		switch column {
		case "debrief_status", "debrief_notes", "debriefed_by", "debriefed_at":
			return errors.New("sync wrote a locally-owned column: " + column)
		}
	}
	if v, ok := updates["invoice_balance"]; ok {
		ticket.InvoiceBalance = v.(decimal.Decimal)
	}
	if v, ok := updates["payment_collected"]; ok {
		ticket.PaymentCollected = v.(bool)
	}
	if v, ok := updates["photo_count"]; ok {
		ticket.PhotoCount = v.(int)
	}
	if v, ok := updates["form_count"]; ok {
		ticket.FormCount = v.(int)
	}
	return nil
}

func completedJob(id, unitId, invoiceId int) fieldline.Job {
	return fieldline.Job{
		Id:             id,
		JobNumber:      "J-1001",
		BusinessUnit:   fieldline.NameRef{Id: unitId, Name: "Residential Plumbing Service"},
		JobType:        fieldline.NameRef{Id: 4, Name: "Demand Call"},
		Customer:       fieldline.NameRef{Id: 9, Name: "Pat Rivera"},
		TechnicianName: "Sam Okafor",
		CompletedOn:    "2025-06-14T16:30:00Z",
		InvoiceId:      invoiceId,
	}
}

func newTestJobSyncer(source JobSource, store JobStore) *JobSyncer {
	s := NewJobSyncer(source, store, discardLogger())
	s.now = func() time.Time { return time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC) }
	return s
}

func TestJobSync_CreatesTicketsWithInvoiceEnrichment(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{{Id: 1, Name: "Residential Plumbing Service", Active: true}},
		jobsByUnit: map[int][]fieldline.Job{
			1: {completedJob(500, 1, 9000)},
		},
		invoices: []fieldline.Invoice{{
			Id:      9000,
			Summary: "Water heater replacement",
			Total:   json.Number("1450"),
			Balance: json.Number("0"),
		}},
		attachments: map[int][]fieldline.Attachment{
			500: {
				{Id: 1, JobId: 500, FileName: "before.jpg", Type: "photo"},
				{Id: 2, JobId: 500, FileName: "after.jpg", Type: "photo"},
				{Id: 3, JobId: 500, FileName: "invoice-ack.pdf", Type: "form"},
			},
		},
	}
	store := newFakeJobStore()

	result, err := newTestJobSyncer(source, store).Run(context.Background(), 24, models.SyncTriggeredScheduler)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !result.Success || result.RecordsCreated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	ticket := store.tickets[500]
	if ticket == nil {
		t.Fatal("ticket missing")
	}
	if ticket.DebriefStatus != models.DebriefStatusPending {
		t.Fatalf("new ticket expected pending debrief, got %s", ticket.DebriefStatus)
	}
	if ticket.JobCategory != "service" || ticket.TradeType != "plumbing" || ticket.CustomerSegment != "residential" {
		t.Fatalf("derived fields wrong: %+v", ticket)
	}
	if !ticket.PaymentCollected {
		t.Fatal("zero balance on a nonzero total means payment collected")
	}
	if ticket.PhotoCount != 2 || ticket.FormCount != 1 {
		t.Fatalf("attachment counts wrong: %d/%d", ticket.PhotoCount, ticket.FormCount)
	}
	if store.units[1] == nil {
		t.Fatal("business unit registry not refreshed")
	}
}

func TestJobSync_FailedUnitIsSkippedOthersProceed(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{
			{Id: 1, Name: "Residential Plumbing Service"},
			{Id: 2, Name: "HVAC Service"},
		},
		jobsByUnit: map[int][]fieldline.Job{
			2: {completedJob(600, 2, 0)},
		},
		jobsErrByUnit: map[int]error{1: errors.New("upstream 500")},
	}
	store := newFakeJobStore()

	result, err := newTestJobSyncer(source, store).Run(context.Background(), 0, models.SyncTriggeredScheduler)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.RecordsCreated != 1 {
		t.Fatalf("healthy unit should still sync: %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("failed unit should collect one error, got %v", result.Errors)
	}
	if store.logs[0].Status != models.SyncStatusCompleted {
		t.Fatal("a failed unit must not fail the job")
	}
}

func TestJobSync_DisabledUnitIsNotFetched(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{{Id: 1, Name: "Residential Plumbing Service"}},
		jobsByUnit: map[int][]fieldline.Job{
			1: {completedJob(500, 1, 0)},
		},
	}
	store := newFakeJobStore()
	store.units[1] = &models.BusinessUnit{BusinessUnitId: 1, Name: "Residential Plumbing Service", IsEnabled: false}

	result, err := newTestJobSyncer(source, store).Run(context.Background(), 24, models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.RecordsProcessed != 0 || result.RecordsCreated != 0 {
		t.Fatalf("disabled unit must contribute no jobs: %+v", result)
	}
	if store.units[1].IsEnabled {
		t.Fatal("registry refresh must not re-enable a disabled unit")
	}
}

func TestJobSync_SecondRunUnchangedWritesNothing(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{{Id: 1, Name: "Residential Plumbing Service"}},
		jobsByUnit: map[int][]fieldline.Job{
			1: {completedJob(500, 1, 0)},
		},
	}
	store := newFakeJobStore()
	syncer := newTestJobSyncer(source, store)

	if _, err := syncer.Run(context.Background(), 24, models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	result, err := syncer.Run(context.Background(), 24, models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if result.RecordsCreated != 0 || result.RecordsUpdated != 0 {
		t.Fatalf("idempotent re-run should write nothing: %+v", result)
	}
	if store.creates != 1 || store.updates != 0 {
		t.Fatalf("unexpected write counts: creates=%d updates=%d", store.creates, store.updates)
	}
}

func TestJobSync_AttachmentFailureDegradesCounts(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{{Id: 1, Name: "Residential Plumbing Service"}},
		jobsByUnit: map[int][]fieldline.Job{
			1: {completedJob(500, 1, 0)},
		},
		attachmentsErr: errors.New("attachments endpoint down"),
	}
	store := newFakeJobStore()

	result, err := newTestJobSyncer(source, store).Run(context.Background(), 24, models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.RecordsCreated != 1 {
		t.Fatalf("attachment failure must not fail the ticket: %+v", result)
	}
	ticket := store.tickets[500]
	if ticket.PhotoCount != -1 || ticket.FormCount != -1 {
		t.Fatalf("expected sentinel counts, got %d/%d", ticket.PhotoCount, ticket.FormCount)
	}
}

func TestJobSync_LocalDebriefStateSurvivesUpdate(t *testing.T) {
	source := &fakeJobSource{
		units: []fieldline.BusinessUnit{{Id: 1, Name: "Residential Plumbing Service"}},
		jobsByUnit: map[int][]fieldline.Job{
			1: {completedJob(500, 1, 0)},
		},
		attachments: map[int][]fieldline.Attachment{
			500: {{Id: 1, JobId: 500, FileName: "before.jpg", Type: "photo"}},
		},
	}
	store := newFakeJobStore()
	syncer := newTestJobSyncer(source, store)

	if _, err := syncer.Run(context.Background(), 24, models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	store.tickets[500].DebriefStatus = models.DebriefStatusCompleted
	store.tickets[500].DebriefNotes = "reviewed with tech"

	// A second photo shows up upstream, forcing an external update.
	source.attachments[500] = append(source.attachments[500],
		fieldline.Attachment{Id: 2, JobId: 500, FileName: "after.jpg", Type: "photo"})

	result, err := syncer.Run(context.Background(), 24, models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if result.RecordsUpdated != 1 {
		t.Fatalf("expected one update: %+v", result)
	}
	ticket := store.tickets[500]
	if ticket.PhotoCount != 2 {
		t.Fatalf("photo count expected 2, got %d", ticket.PhotoCount)
	}
	if ticket.DebriefStatus != models.DebriefStatusCompleted || ticket.DebriefNotes != "reviewed with tech" {
		t.Fatalf("locally-owned debrief fields were clobbered: %+v", ticket)
	}
}
