package models

// Status fields that sync and mutations write go through closed string types
// with explicit transition tables, so an invalid write fails loudly instead of
// leaving a row in a state no dashboard filter matches.

type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
)

var invoiceStatusTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusOpen: {InvoiceStatusPaid},
	// paid -> open happens when a closed invoice reappears in the open-items
	// fetch (reopened upstream, e.g. a reversed payment).
	InvoiceStatusPaid: {InvoiceStatusOpen},
}

func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusOpen || s == InvoiceStatusPaid
}

func (s InvoiceStatus) CanTransition(to InvoiceStatus) bool {
	if s == to {
		return true
	}
	for _, allowed := range invoiceStatusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// WorkflowStatus is the collections workflow state, owned locally and never
// touched by sync.
type WorkflowStatus string

const (
	WorkflowStatusNew        WorkflowStatus = "new"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusPromised   WorkflowStatus = "promised"
	WorkflowStatusEscalated  WorkflowStatus = "escalated"
	WorkflowStatusResolved   WorkflowStatus = "resolved"
)

var workflowStatusTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusNew:        {WorkflowStatusInProgress, WorkflowStatusEscalated},
	WorkflowStatusInProgress: {WorkflowStatusPromised, WorkflowStatusEscalated, WorkflowStatusResolved},
	WorkflowStatusPromised:   {WorkflowStatusInProgress, WorkflowStatusEscalated, WorkflowStatusResolved},
	WorkflowStatusEscalated:  {WorkflowStatusInProgress, WorkflowStatusResolved},
	WorkflowStatusResolved:   {},
}

func (s WorkflowStatus) Valid() bool {
	_, ok := workflowStatusTransitions[s]
	return ok
}

func (s WorkflowStatus) CanTransition(to WorkflowStatus) bool {
	if s == to {
		return true
	}
	for _, allowed := range workflowStatusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DebriefStatus tracks the review state of a completed job ticket, owned
// locally and never touched by sync.
type DebriefStatus string

const (
	DebriefStatusPending    DebriefStatus = "pending"
	DebriefStatusInProgress DebriefStatus = "in_progress"
	DebriefStatusCompleted  DebriefStatus = "completed"
)

var debriefStatusTransitions = map[DebriefStatus][]DebriefStatus{
	DebriefStatusPending:    {DebriefStatusInProgress, DebriefStatusCompleted},
	DebriefStatusInProgress: {DebriefStatusCompleted, DebriefStatusPending},
	DebriefStatusCompleted:  {},
}

func (s DebriefStatus) Valid() bool {
	_, ok := debriefStatusTransitions[s]
	return ok
}

func (s DebriefStatus) CanTransition(to DebriefStatus) bool {
	if s == to {
		return true
	}
	for _, allowed := range debriefStatusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AgingBucket is derived from days outstanding at sync time.
type AgingBucket string

const (
	AgingBucketCurrent    AgingBucket = "current"
	AgingBucketThirty     AgingBucket = "30_days"
	AgingBucketSixty      AgingBucket = "60_days"
	AgingBucketNinetyPlus AgingBucket = "90_plus"
)

const (
	SyncTypeInvoices = "invoices"
	SyncTypeJobs     = "jobs"
)

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduler = "scheduler"
)

const (
	NotificationChannelSlack = "slack"
	NotificationChannelSMS   = "sms"
	NotificationChannelEmail = "email"
)

const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

const (
	OwnershipBucketUnassigned = "unassigned"
)

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleViewer  = "viewer"
)
