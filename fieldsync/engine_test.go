package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hearthside/fieldops_backend/fieldline"
	"github.com/hearthside/fieldops_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeInvoiceSource struct {
	invoices []fieldline.Invoice
	err      error
}

func (f *fakeInvoiceSource) OpenInvoices(ctx context.Context) ([]fieldline.Invoice, error) {
	return f.invoices, f.err
}

type fakeInvoiceStore struct {
	invoices   map[int]*models.ArInvoice
	ownerships map[int]bool
	logs       []*models.SyncLog
	finalized  int
	creates    int
	updates    int
	closes     int
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		invoices:   map[int]*models.ArInvoice{},
		ownerships: map[int]bool{},
	}
}

func (f *fakeInvoiceStore) CreateSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	syncLog.ID = uint(len(f.logs) + 1)
	f.logs = append(f.logs, syncLog)
	return nil
}

func (f *fakeInvoiceStore) FinalizeSyncLog(ctx context.Context, syncLog *models.SyncLog) error {
	f.finalized++
	return nil
}

func (f *fakeInvoiceStore) GetArInvoiceByInvoiceId(ctx context.Context, invoiceId int) (*models.ArInvoice, error) {
	if inv, ok := f.invoices[invoiceId]; ok {
		copied := *inv
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeInvoiceStore) CreateArInvoice(ctx context.Context, invoice *models.ArInvoice) error {
	f.creates++
	copied := *invoice
	f.invoices[invoice.InvoiceId] = &copied
	return nil
}

func (f *fakeInvoiceStore) UpdateArInvoiceExternal(ctx context.Context, invoiceId int, updates map[string]interface{}) error {
	f.updates++
	inv := f.invoices[invoiceId]
	if inv == nil {
		return errors.New("row missing")
	}
	for column, value := range updates {
		switch column {
		case "invoice_number":
			inv.InvoiceNumber = value.(string)
		case "customer_id":
			inv.CustomerId = value.(int)
		case "customer_name":
			inv.CustomerName = value.(string)
		case "business_unit_id":
			inv.BusinessUnitId = value.(int)
		case "business_unit_name":
			inv.BusinessUnitName = value.(string)
		case "invoice_date":
			inv.InvoiceDate = value.(*time.Time)
		case "total":
			inv.Total = value.(decimal.Decimal)
		case "balance":
			inv.Balance = value.(decimal.Decimal)
		case "aging_bucket":
			inv.AgingBucket = value.(models.AgingBucket)
		case "trade_type":
			inv.TradeType = value.(string)
		case "customer_segment":
			inv.CustomerSegment = value.(string)
		case "status":
			inv.Status = value.(models.InvoiceStatus)
		case "owner_id", "workflow_status", "notes", "promised_date":
			return errors.New("sync wrote a locally-owned column: " + column)
		}
	}
	return nil
}

func (f *fakeInvoiceStore) EnsureOwnership(ctx context.Context, invoiceId int) error {
	f.ownerships[invoiceId] = true
	return nil
}

func (f *fakeInvoiceStore) ListOpenInvoiceIds(ctx context.Context) ([]int, error) {
	var ids []int
	for id, inv := range f.invoices {
		if inv.Status == models.InvoiceStatusOpen {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeInvoiceStore) CloseArInvoice(ctx context.Context, invoiceId int) error {
	f.closes++
	inv := f.invoices[invoiceId]
	if inv == nil {
		return errors.New("row missing")
	}
	inv.Status = models.InvoiceStatusPaid
	inv.Balance = decimal.Zero
	return nil
}

func newTestSyncer(source InvoiceSource, store InvoiceStore) *InvoiceSyncer {
	s := NewInvoiceSyncer(source, store, discardLogger())
	s.now = func() time.Time { return time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC) }
	return s
}

func openInvoice(id int, number string, balance string) fieldline.Invoice {
	return fieldline.Invoice{
		Id:           id,
		Number:       number,
		Customer:     fieldline.NameRef{Id: 7, Name: "Acme Property Group"},
		BusinessUnit: fieldline.NameRef{Id: 3, Name: "HVAC Service - Commercial"},
		InvoicedOn:   "2025-06-01T00:00:00Z",
		Total:        json.Number("500"),
		Balance:      json.Number(balance),
	}
}

func TestInvoiceSync_CreatesMirrorAndOwnershipRows(t *testing.T) {
	source := &fakeInvoiceSource{invoices: []fieldline.Invoice{
		openInvoice(100, "INV-100", "500"),
		openInvoice(101, "INV-101", "0"),
	}}
	store := newFakeInvoiceStore()

	result, err := newTestSyncer(source, store).Run(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !result.Success || result.RecordsProcessed != 2 || result.RecordsCreated != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	first := store.invoices[100]
	if first == nil || first.Status != models.InvoiceStatusOpen {
		t.Fatalf("invoice 100 expected open mirror row, got %+v", first)
	}
	if first.TradeType != "hvac" || first.CustomerSegment != "commercial" {
		t.Fatalf("derived fields wrong: %+v", first)
	}
	if first.WorkflowStatus != models.WorkflowStatusNew {
		t.Fatalf("new row expected workflow new, got %s", first.WorkflowStatus)
	}

	second := store.invoices[101]
	if second == nil || second.Status != models.InvoiceStatusPaid {
		t.Fatalf("zero-balance invoice expected paid, got %+v", second)
	}

	for _, id := range []int{100, 101} {
		if !store.ownerships[id] {
			t.Fatalf("ownership row missing for %d", id)
		}
	}

	if len(store.logs) != 1 || store.finalized != 1 {
		t.Fatalf("expected exactly one finalized log row, got %d/%d", len(store.logs), store.finalized)
	}
	if store.logs[0].Status != models.SyncStatusCompleted {
		t.Fatalf("log expected completed, got %s", store.logs[0].Status)
	}
}

func TestInvoiceSync_SecondRunUnchangedWritesNothing(t *testing.T) {
	source := &fakeInvoiceSource{invoices: []fieldline.Invoice{
		openInvoice(100, "INV-100", "500"),
	}}
	store := newFakeInvoiceStore()
	syncer := newTestSyncer(source, store)

	if _, err := syncer.Run(context.Background(), models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	result, err := syncer.Run(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if result.RecordsCreated != 0 || result.RecordsUpdated != 0 || result.RecordsClosed != 0 {
		t.Fatalf("idempotent re-run should write nothing: %+v", result)
	}
	if store.creates != 1 || store.updates != 0 {
		t.Fatalf("unexpected write counts: creates=%d updates=%d", store.creates, store.updates)
	}
}

func TestInvoiceSync_BalanceChangeUpdatesOnlyThatRow(t *testing.T) {
	source := &fakeInvoiceSource{invoices: []fieldline.Invoice{
		openInvoice(100, "INV-100", "500"),
		openInvoice(101, "INV-101", "0"),
	}}
	store := newFakeInvoiceStore()
	syncer := newTestSyncer(source, store)

	if _, err := syncer.Run(context.Background(), models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	// Local edits a collector made between runs.
	store.invoices[100].WorkflowStatus = models.WorkflowStatusInProgress
	store.invoices[100].Notes = "left voicemail"

	source.invoices = []fieldline.Invoice{
		openInvoice(100, "INV-100", "300"),
		openInvoice(101, "INV-101", "0"),
	}
	result, err := syncer.Run(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if result.RecordsUpdated != 1 || result.RecordsCreated != 0 {
		t.Fatalf("expected exactly one update: %+v", result)
	}

	row := store.invoices[100]
	if !row.Balance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance expected 300, got %s", row.Balance)
	}
	if row.WorkflowStatus != models.WorkflowStatusInProgress || row.Notes != "left voicemail" {
		t.Fatalf("locally-owned fields were clobbered: %+v", row)
	}
}

func TestInvoiceSync_ClosesAbsentRowsWithoutDeleting(t *testing.T) {
	source := &fakeInvoiceSource{invoices: []fieldline.Invoice{
		openInvoice(100, "INV-100", "500"),
		openInvoice(101, "INV-101", "250"),
	}}
	store := newFakeInvoiceStore()
	syncer := newTestSyncer(source, store)

	if _, err := syncer.Run(context.Background(), models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	store.invoices[101].Notes = "promised payment friday"

	// Invoice 101 settled upstream and no longer appears in the open fetch.
	source.invoices = []fieldline.Invoice{openInvoice(100, "INV-100", "500")}
	result, err := syncer.Run(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if result.RecordsClosed != 1 {
		t.Fatalf("expected one closure: %+v", result)
	}

	row := store.invoices[101]
	if row == nil {
		t.Fatal("closed row must not be deleted")
	}
	if row.Status != models.InvoiceStatusPaid || !row.Balance.IsZero() {
		t.Fatalf("closed row expected paid/zero, got %s/%s", row.Status, row.Balance)
	}
	if row.Notes != "promised payment friday" {
		t.Fatalf("closure clobbered locally-owned notes: %q", row.Notes)
	}
	if store.invoices[100].Status != models.InvoiceStatusOpen {
		t.Fatal("still-open invoice must stay open")
	}
}

func TestInvoiceSync_PerRecordFailureDoesNotAbort(t *testing.T) {
	invoices := make([]fieldline.Invoice, 0, 10)
	for i := 1; i <= 9; i++ {
		invoices = append(invoices, openInvoice(i, "INV", "100"))
	}
	invoices = append(invoices, fieldline.Invoice{Id: 0}) // malformed record

	source := &fakeInvoiceSource{invoices: invoices}
	store := newFakeInvoiceStore()

	result, err := newTestSyncer(source, store).Run(context.Background(), models.SyncTriggeredScheduler)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if result.RecordsProcessed != 10 {
		t.Fatalf("expected 10 processed, got %d", result.RecordsProcessed)
	}
	if result.RecordsCreated != 9 {
		t.Fatalf("expected 9 created, got %d", result.RecordsCreated)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one collected error, got %v", result.Errors)
	}
	if !result.Success || store.logs[0].Status != models.SyncStatusCompleted {
		t.Fatal("per-record failures must not fail the job")
	}
}

func TestInvoiceSync_FetchFailureFailsRun(t *testing.T) {
	source := &fakeInvoiceSource{err: errors.New("upstream 503")}
	store := newFakeInvoiceStore()

	result, err := newTestSyncer(source, store).Run(context.Background(), models.SyncTriggeredScheduler)
	if err == nil {
		t.Fatal("expected run error")
	}
	if result.Success {
		t.Fatal("failed run must not report success")
	}
	if store.finalized != 1 || store.logs[0].Status != models.SyncStatusFailed {
		t.Fatalf("log expected finalized as failed, got %+v", store.logs[0])
	}
	if store.creates != 0 || store.closes != 0 {
		t.Fatal("aborted run must not write rows")
	}
}

func TestInvoiceSync_ReopenedInvoiceGoesBackToOpen(t *testing.T) {
	source := &fakeInvoiceSource{invoices: []fieldline.Invoice{
		openInvoice(100, "INV-100", "500"),
	}}
	store := newFakeInvoiceStore()
	syncer := newTestSyncer(source, store)

	if _, err := syncer.Run(context.Background(), models.SyncTriggeredManual); err != nil {
		t.Fatalf("first run error: %v", err)
	}

	// Settled, then a payment reversal reopens it upstream.
	source.invoices = nil
	if _, err := syncer.Run(context.Background(), models.SyncTriggeredManual); err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if store.invoices[100].Status != models.InvoiceStatusPaid {
		t.Fatal("absent invoice should close")
	}

	source.invoices = []fieldline.Invoice{openInvoice(100, "INV-100", "500")}
	result, err := syncer.Run(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("third run error: %v", err)
	}
	if result.RecordsUpdated != 1 {
		t.Fatalf("reopen expected one update: %+v", result)
	}
	if store.invoices[100].Status != models.InvoiceStatusOpen {
		t.Fatalf("reopened invoice expected open, got %s", store.invoices[100].Status)
	}
}
