package workflow

import (
	"fmt"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
)

type WorkflowType string

const (
	Sequential WorkflowType = "sequential"
	Parallel   WorkflowType = "parallel"
)

type Status string

const (
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == Approved || s == Rejected
}

type Priority string

const (
	Normal Priority = "normal"
	High   Priority = "high"
	Urgent Priority = "urgent"
)

// rank orders priorities for the queue; unknown priorities sort last.
func (p Priority) rank() int {
	switch p {
	case Urgent:
		return 0
	case High:
		return 1
	case Normal:
		return 2
	default:
		return 3
	}
}

type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Approval is one multi-step review of an asset or a campaign.
type Approval struct {
	ID           int64        `json:"id"`
	AssetID      *int64       `json:"asset_id"`
	CampaignID   *int64       `json:"campaign_id"`
	WorkflowType WorkflowType `json:"workflow_type"`
	Status       Status       `json:"status"`
	CurrentStep  int          `json:"current_step"`
	TotalSteps   int          `json:"total_steps"`
	SLADeadline  *time.Time   `json:"sla_deadline"`
	Priority     Priority     `json:"priority"`
	SubmittedBy  *int64       `json:"submitted_by"`
	CompletedAt  *time.Time   `json:"completed_at"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// Set by queue and lookup reads from the related collections.
	AssetName       string `json:"asset_name,omitempty"`
	CampaignTitle   string `json:"campaign_title,omitempty"`
	SubmittedByName string `json:"submitted_by_name,omitempty"`

	Steps []Step `json:"steps"`
}

// Step is one reviewer's slot in an approval.
type Step struct {
	ID              int64      `json:"id"`
	ApprovalID      int64      `json:"approval_id"`
	StepNumber      int        `json:"step_number"`
	ApproverID      int64      `json:"approver_id"`
	ApproverName    string     `json:"approver_name,omitempty"`
	Status          Status     `json:"status"`
	Comments        string     `json:"comments,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
}

// Subject describes what the approval covers, for logs and exports.
func (a Approval) Subject() string {
	switch {
	case a.AssetID != nil:
		return fmt.Sprintf("asset %d", *a.AssetID)
	case a.CampaignID != nil:
		return fmt.Sprintf("campaign %d", *a.CampaignID)
	default:
		return "none"
	}
}

type CreateRequest struct {
	AssetID      *int64
	CampaignID   *int64
	WorkflowType WorkflowType // defaults to Sequential
	Approvers    []int64
	SLAHours     float64  // no deadline when zero
	Priority     Priority // defaults to Normal
	SubmittedBy  *int64   // stored as null when nil
}

type DecisionRequest struct {
	ApprovalID      int64
	ReviewerID      int64
	Decision        Decision
	Comments        string
	RejectionReason string
}

// BulkResult is the outcome of one id of a bulk decision.
type BulkResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const bulkError = "error"

type QueueFilter struct {
	Status   Status
	Priority Priority
}

// Stats are the dashboard counts.
type Stats struct {
	Pending     int `json:"pending"`
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
	SLAWarnings int `json:"sla_warnings"`
}

func optionalID(record core.Record, field string) *int64 {
	if record.IsNull(field) {
		return nil
	}
	if id, ok := core.CoerceID(record[field]); ok {
		return &id
	}
	return nil
}

func optionalTime(record core.Record, field string) *time.Time {
	if t, ok := record.Time(field); ok {
		return &t
	}
	return nil
}

func approvalFromRecord(record core.Record) Approval {
	currentStep, _ := record.Int("current_step")
	totalSteps, _ := record.Int("total_steps")
	createdAt, _ := record.Time(core.FieldCreatedAt)
	updatedAt, _ := record.Time(core.FieldUpdatedAt)

	return Approval{
		ID:           record.ID(),
		AssetID:      optionalID(record, "asset_id"),
		CampaignID:   optionalID(record, "campaign_id"),
		WorkflowType: WorkflowType(record.String("workflow_type")),
		Status:       Status(record.String("status")),
		CurrentStep:  int(currentStep),
		TotalSteps:   int(totalSteps),
		SLADeadline:  optionalTime(record, "sla_deadline"),
		Priority:     Priority(record.String("priority")),
		SubmittedBy:  optionalID(record, "submitted_by"),
		CompletedAt:  optionalTime(record, "completed_at"),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

func stepFromRecord(record core.Record) Step {
	approvalID, _ := record.Int("approval_id")
	stepNumber, _ := record.Int("step_number")
	approverID, _ := core.CoerceID(record["approver_id"])

	return Step{
		ID:              record.ID(),
		ApprovalID:      approvalID,
		StepNumber:      int(stepNumber),
		ApproverID:      approverID,
		Status:          Status(record.String("status")),
		Comments:        record.String("comments"),
		RejectionReason: record.String("rejection_reason"),
		ReviewedAt:      optionalTime(record, "reviewed_at"),
	}
}
