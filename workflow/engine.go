package workflow

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/sql"
	"go.uber.org/zap"
)

// Engine runs approval workflows on top of a db.Engine. Every operation that
// changes state runs in one transaction.
type Engine struct {
	db         *db.Engine
	propagator AssetPropagator
	logger     *zap.Logger
}

type Option func(*Engine)

func WithPropagator(propagator AssetPropagator) Option {
	return func(engine *Engine) {
		if propagator != nil {
			engine.propagator = propagator
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(engine *Engine) {
		if logger != nil {
			engine.logger = logger
		}
	}
}

func NewEngine(database *db.Engine, opts ...Option) *Engine {
	engine := &Engine{
		db:         database,
		propagator: StorePropagator{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// DB returns the underlying record engine.
func (engine *Engine) DB() *db.Engine {
	return engine.db
}

func (engine *Engine) now() time.Time {
	return engine.db.Clock().Now()
}

// Create opens a pending approval with one step per approver, in order, and
// returns its id.
func (engine *Engine) Create(ctx context.Context, req CreateRequest) (int64, error) {
	if len(req.Approvers) == 0 {
		return 0, newError(ErrCodeNoReviewers, 0, ErrNoReviewers)
	}
	if req.AssetID != nil && req.CampaignID != nil {
		return 0, newError(ErrCodeInvalidSubject, 0, ErrInvalidSubject)
	}

	workflowType := req.WorkflowType
	if workflowType == "" {
		workflowType = Sequential
	}
	if workflowType != Sequential && workflowType != Parallel {
		return 0, newError(ErrCodeInvalidRequest, 0, fmt.Errorf("%w: workflow type %q", ErrInvalidRequest, workflowType))
	}

	priority := req.Priority
	if priority == "" {
		priority = Normal
	}
	if priority.rank() > Normal.rank() {
		return 0, newError(ErrCodeInvalidRequest, 0, fmt.Errorf("%w: priority %q", ErrInvalidRequest, priority))
	}

	if req.SLAHours < 0 || math.IsNaN(req.SLAHours) || math.IsInf(req.SLAHours, 0) {
		return 0, newError(ErrCodeInvalidRequest, 0, fmt.Errorf("%w: sla hours %v", ErrInvalidRequest, req.SLAHours))
	}

	id, err := db.InTransaction(ctx, engine.db, func(tx *db.Tx) (int64, error) {
		now := tx.Now()

		var deadline any
		if req.SLAHours > 0 {
			deadline = now.Add(time.Duration(req.SLAHours * float64(time.Hour)))
		}

		result, err := tx.Exec(sql.InsertInto(core.Approvals, sql.Fields{
			"asset_id":      req.AssetID,
			"campaign_id":   req.CampaignID,
			"workflow_type": string(workflowType),
			"status":        string(Pending),
			"current_step":  0,
			"total_steps":   len(req.Approvers),
			"sla_deadline":  deadline,
			"priority":      string(priority),
			"submitted_by":  req.SubmittedBy,
			"completed_at":  nil,
		}))
		if err != nil {
			return 0, err
		}
		if result.InsertedID == nil {
			return 0, fmt.Errorf("collection %s is unavailable", core.Approvals)
		}
		approvalID := *result.InsertedID

		for i, approver := range req.Approvers {
			_, err := tx.Exec(sql.InsertInto(core.ApprovalSteps, sql.Fields{
				"approval_id":      approvalID,
				"step_number":      i,
				"approver_id":      approver,
				"status":           string(Pending),
				"comments":         nil,
				"rejection_reason": nil,
				"reviewed_at":      nil,
			}))
			if err != nil {
				return 0, err
			}
		}

		err = logActivity(tx, req.SubmittedBy, ActionCreated, approvalID, map[string]any{
			"workflow_type": workflowType,
			"approvers":     req.Approvers,
			"priority":      priority,
		})
		if err != nil {
			return 0, err
		}

		tx.SetMessage(fmt.Sprintf("create approval %d", approvalID))
		return approvalID, nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordApprovalCreated(string(workflowType), string(priority))
	engine.logger.Info("approval created",
		zap.Int64("approval_id", id),
		zap.String("workflow_type", string(workflowType)),
		zap.Int("steps", len(req.Approvers)))

	return id, nil
}

// RecordDecision applies one reviewer's decision to their earliest pending
// step and returns the approval's resulting status.
func (engine *Engine) RecordDecision(ctx context.Context, req DecisionRequest) (Status, error) {
	status, err := engine.recordDecision(ctx, req)
	metrics.RecordDecision(string(req.Decision), err)
	if err != nil {
		engine.logger.Debug("decision refused",
			zap.Int64("approval_id", req.ApprovalID),
			zap.Int64("reviewer_id", req.ReviewerID),
			zap.Error(err))
		return "", err
	}

	engine.logger.Info("decision recorded",
		zap.Int64("approval_id", req.ApprovalID),
		zap.Int64("reviewer_id", req.ReviewerID),
		zap.String("decision", string(req.Decision)),
		zap.String("status", string(status)))
	return status, nil
}

func (engine *Engine) recordDecision(ctx context.Context, req DecisionRequest) (Status, error) {
	if req.Decision != Approve && req.Decision != Reject {
		return "", newError(ErrCodeInvalidRequest, req.ApprovalID, fmt.Errorf("%w: decision %q", ErrInvalidRequest, req.Decision))
	}

	return db.InTransaction(ctx, engine.db, func(tx *db.Tx) (Status, error) {
		record, err := tx.First(sql.FindWhere(core.Approvals, core.FieldID, req.ApprovalID))
		if err != nil {
			return "", err
		}
		if record == nil {
			return "", newError(ErrCodeNotFound, req.ApprovalID, ErrApprovalNotFound)
		}
		approval := approvalFromRecord(record)
		if approval.Status.Terminal() {
			return "", newError(ErrCodeClosed, approval.ID, ErrApprovalClosed)
		}

		steps, err := loadSteps(tx, approval.ID)
		if err != nil {
			return "", err
		}

		index := slices.IndexFunc(steps, func(step Step) bool {
			return step.ApproverID == req.ReviewerID && step.Status == Pending
		})
		if index < 0 {
			return "", newError(ErrCodeNotAnApprover, approval.ID, ErrNotAnApprover)
		}
		step := steps[index]
		now := tx.Now()

		var status Status
		switch req.Decision {
		case Approve:
			status, err = engine.approve(tx, approval, step, steps, req, now)
		case Reject:
			status, err = engine.reject(tx, approval, step, req, now)
		}
		if err != nil {
			return "", err
		}

		tx.SetMessage(fmt.Sprintf("%s approval %d step %d", req.Decision, approval.ID, step.StepNumber))
		return status, nil
	})
}

func (engine *Engine) approve(tx *db.Tx, approval Approval, step Step, steps []Step, req DecisionRequest, now time.Time) (Status, error) {
	_, err := tx.Exec(sql.UpdateByID(core.ApprovalSteps, step.ID, sql.Fields{
		"status":      string(Approved),
		"comments":    nullable(req.Comments),
		"reviewed_at": now,
	}))
	if err != nil {
		return "", err
	}

	remaining := 0
	for _, other := range steps {
		if other.ID != step.ID && other.Status == Pending {
			remaining++
		}
	}

	if remaining > 0 {
		if _, err := tx.Exec(sql.UpdateByID(core.Approvals, approval.ID, sql.Fields{
			"current_step": approval.CurrentStep + 1,
		})); err != nil {
			return "", err
		}
		err := logActivity(tx, &req.ReviewerID, ActionStepApproved, approval.ID, map[string]any{
			"step_number": step.StepNumber,
			"remaining":   remaining,
		})
		return Pending, err
	}

	if _, err := tx.Exec(sql.UpdateByID(core.Approvals, approval.ID, sql.Fields{
		"status":       string(Approved),
		"completed_at": now,
	})); err != nil {
		return "", err
	}
	if err := engine.propagate(tx, approval, Approved); err != nil {
		return "", err
	}

	err = logActivity(tx, &req.ReviewerID, ActionApproved, approval.ID, map[string]any{
		"step_number": step.StepNumber,
		"comments":    nullable(req.Comments),
	})
	return Approved, err
}

// reject closes the approval at once. Other pending steps are left as they are.
func (engine *Engine) reject(tx *db.Tx, approval Approval, step Step, req DecisionRequest, now time.Time) (Status, error) {
	_, err := tx.Exec(sql.UpdateByID(core.ApprovalSteps, step.ID, sql.Fields{
		"status":           string(Rejected),
		"comments":         nullable(req.Comments),
		"rejection_reason": nullable(req.RejectionReason),
		"reviewed_at":      now,
	}))
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(sql.UpdateByID(core.Approvals, approval.ID, sql.Fields{
		"status":       string(Rejected),
		"completed_at": now,
	})); err != nil {
		return "", err
	}
	if err := engine.propagate(tx, approval, Rejected); err != nil {
		return "", err
	}

	err = logActivity(tx, &req.ReviewerID, ActionRejected, approval.ID, map[string]any{
		"step_number":      step.StepNumber,
		"rejection_reason": nullable(req.RejectionReason),
	})
	return Rejected, err
}

func (engine *Engine) propagate(tx *db.Tx, approval Approval, status Status) error {
	if approval.AssetID == nil {
		return nil
	}
	if err := engine.propagator.Propagate(tx, *approval.AssetID, status); err != nil {
		return fmt.Errorf("propagate %s to asset %d: %w", status, *approval.AssetID, err)
	}
	return nil
}

// BulkDecision applies the same decision to each approval independently.
// A failure for one id is reported in its result and does not undo or stop
// the others.
func (engine *Engine) BulkDecision(ctx context.Context, ids []int64, reviewerID int64, decision Decision, comments string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, BulkResult{ID: id, Status: bulkError, Error: err.Error()})
			continue
		}

		status, err := engine.RecordDecision(ctx, DecisionRequest{
			ApprovalID: id,
			ReviewerID: reviewerID,
			Decision:   decision,
			Comments:   comments,
		})
		if err != nil {
			results = append(results, BulkResult{ID: id, Status: bulkError, Error: err.Error()})
			continue
		}

		// A sequential approval with steps left is still pending, but this
		// reviewer's part succeeded.
		outcome := string(status)
		if status == Pending {
			outcome = string(Approved)
		}
		results = append(results, BulkResult{ID: id, Status: outcome})
	}
	return results
}

// Get returns the approval with its ordered, annotated steps.
func (engine *Engine) Get(ctx context.Context, id int64) (Approval, error) {
	return db.InTransaction(ctx, engine.db, func(tx *db.Tx) (Approval, error) {
		record, err := tx.First(sql.FindWhere(core.Approvals, core.FieldID, id))
		if err != nil {
			return Approval{}, err
		}
		if record == nil {
			return Approval{}, newError(ErrCodeNotFound, id, ErrApprovalNotFound)
		}

		names, err := newDirectory(tx)
		if err != nil {
			return Approval{}, err
		}

		approval := approvalFromRecord(record)
		steps, err := loadSteps(tx, approval.ID)
		if err != nil {
			return Approval{}, err
		}
		names.annotate(&approval, steps)
		return approval, nil
	})
}

// History returns the steps of an approval ordered by step number.
func (engine *Engine) History(ctx context.Context, id int64) ([]Step, error) {
	approval, err := engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return approval.Steps, nil
}

func loadSteps(tx *db.Tx, approvalID int64) ([]Step, error) {
	records, err := tx.Find(sql.FindWhere(core.ApprovalSteps, "approval_id", approvalID))
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(records))
	for _, record := range records {
		steps = append(steps, stepFromRecord(record))
	}
	slices.SortStableFunc(steps, func(a, b Step) int {
		if a.StepNumber != b.StepNumber {
			return cmp.Compare(a.StepNumber, b.StepNumber)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return steps, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

