package models

import "testing"

func TestInvoiceStatusTransitions(t *testing.T) {
	cases := []struct {
		from    InvoiceStatus
		to      InvoiceStatus
		allowed bool
	}{
		{InvoiceStatusOpen, InvoiceStatusPaid, true},
		{InvoiceStatusPaid, InvoiceStatusOpen, true},
		{InvoiceStatusOpen, InvoiceStatusOpen, true},
		{InvoiceStatusPaid, InvoiceStatusPaid, true},
		{InvoiceStatusOpen, InvoiceStatus("void"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestWorkflowStatusTransitions(t *testing.T) {
	cases := []struct {
		from    WorkflowStatus
		to      WorkflowStatus
		allowed bool
	}{
		{WorkflowStatusNew, WorkflowStatusInProgress, true},
		{WorkflowStatusNew, WorkflowStatusEscalated, true},
		{WorkflowStatusNew, WorkflowStatusResolved, false},
		{WorkflowStatusNew, WorkflowStatusPromised, false},
		{WorkflowStatusInProgress, WorkflowStatusPromised, true},
		{WorkflowStatusInProgress, WorkflowStatusResolved, true},
		{WorkflowStatusPromised, WorkflowStatusInProgress, true},
		{WorkflowStatusEscalated, WorkflowStatusResolved, true},
		{WorkflowStatusResolved, WorkflowStatusInProgress, false},
		{WorkflowStatusResolved, WorkflowStatusResolved, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestWorkflowStatusValid(t *testing.T) {
	for _, s := range []WorkflowStatus{WorkflowStatusNew, WorkflowStatusInProgress, WorkflowStatusPromised, WorkflowStatusEscalated, WorkflowStatusResolved} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if WorkflowStatus("done").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}

func TestDebriefStatusTransitions(t *testing.T) {
	cases := []struct {
		from    DebriefStatus
		to      DebriefStatus
		allowed bool
	}{
		{DebriefStatusPending, DebriefStatusInProgress, true},
		{DebriefStatusPending, DebriefStatusCompleted, true},
		{DebriefStatusInProgress, DebriefStatusPending, true},
		{DebriefStatusInProgress, DebriefStatusCompleted, true},
		{DebriefStatusCompleted, DebriefStatusPending, false},
		{DebriefStatusCompleted, DebriefStatusInProgress, false},
		{DebriefStatusCompleted, DebriefStatusCompleted, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestSyncLogSetErrorsCapsList(t *testing.T) {
	errs := make([]string, 30)
	for i := range errs {
		errs[i] = "boom"
	}
	var log SyncLog
	log.SetErrors(errs)

	stored := log.Errors()
	if len(stored) != 21 {
		t.Fatalf("expected 20 errors plus overflow marker, got %d", len(stored))
	}
	if stored[20] != "...and more" {
		t.Fatalf("expected overflow marker, got %q", stored[20])
	}
}
