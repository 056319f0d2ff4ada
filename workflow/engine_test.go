package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestWorkflow(t *testing.T, opts ...Option) (*Engine, *core.FixedClock) {
	t.Helper()

	persistence, err := ps.NewMemoryPersistence()
	require.NoError(t, err)

	clock := &core.FixedClock{At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	database := db.NewEngine(persistence, core.Identity{Name: "test", Email: "test@test.com"}, db.WithClock(clock))
	require.NoError(t, database.Load())

	return NewEngine(database, opts...), clock
}

func ptr(v int64) *int64 {
	return &v
}

func insertAsset(t *testing.T, engine *Engine, name string) int64 {
	t.Helper()

	result, err := engine.DB().Mutate("INSERT INTO assets (original_name, status) VALUES (?, ?)", name, "pending")
	require.NoError(t, err)
	require.NotNil(t, result.InsertedID)
	return *result.InsertedID
}

func assetStatus(t *testing.T, engine *Engine, id int64) string {
	t.Helper()

	record, err := engine.DB().LookupOne("SELECT * FROM assets WHERE id = ?", id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.String("status")
}

func decide(engine *Engine, approvalID, reviewerID int64, decision Decision) (Status, error) {
	return engine.RecordDecision(context.Background(), DecisionRequest{
		ApprovalID: approvalID,
		ReviewerID: reviewerID,
		Decision:   decision,
	})
}

func commitCount(t *testing.T, engine *Engine) int {
	t.Helper()

	history, err := engine.DB().Persistence().TransactionsSince(time.Time{})
	require.NoError(t, err)
	return len(history)
}

func TestCreateSequentialWithDeadline(t *testing.T) {
	engine, clock := setupTestWorkflow(t)
	ctx := context.Background()
	assetID := insertAsset(t, engine, "banner.png")

	id, err := engine.Create(ctx, CreateRequest{
		AssetID:      ptr(assetID),
		WorkflowType: Sequential,
		Approvers:    []int64{7, 9},
		SLAHours:     24,
		SubmittedBy:  ptr(3),
	})
	require.NoError(t, err)

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, Pending, approval.Status)
	assert.Equal(t, 0, approval.CurrentStep)
	assert.Equal(t, 2, approval.TotalSteps)
	assert.Equal(t, Normal, approval.Priority)
	assert.Nil(t, approval.CompletedAt)
	require.NotNil(t, approval.SLADeadline)
	assert.True(t, clock.Now().Add(24*time.Hour).Equal(*approval.SLADeadline))

	require.Len(t, approval.Steps, 2)
	assert.Equal(t, 0, approval.Steps[0].StepNumber)
	assert.Equal(t, int64(7), approval.Steps[0].ApproverID)
	assert.Equal(t, 1, approval.Steps[1].StepNumber)
	assert.Equal(t, int64(9), approval.Steps[1].ApproverID)
	for _, step := range approval.Steps {
		assert.Equal(t, Pending, step.Status)
		assert.Nil(t, step.ReviewedAt)
	}
}

func TestCreateNumbersStepsContiguously(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	for n := 1; n <= 6; n++ {
		approvers := make([]int64, n)
		for i := range approvers {
			approvers[i] = int64(100 + i)
		}

		id, err := engine.Create(ctx, CreateRequest{CampaignID: ptr(1), Approvers: approvers})
		require.NoError(t, err)

		steps, err := engine.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, steps, n)
		for i, step := range steps {
			assert.Equal(t, i, step.StepNumber)
			assert.Equal(t, id, step.ApprovalID)
		}
	}
}

func TestCreateWithoutDeadline(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7}})
	require.NoError(t, err)

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, approval.SLADeadline)
	assert.Nil(t, approval.AssetID)
	assert.Nil(t, approval.CampaignID)
	assert.Equal(t, Sequential, approval.WorkflowType)
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
		want error
		code ErrorCode
	}{
		{
			name: "no reviewers",
			req:  CreateRequest{AssetID: ptr(1)},
			want: ErrNoReviewers,
			code: ErrCodeNoReviewers,
		},
		{
			name: "asset and campaign",
			req:  CreateRequest{AssetID: ptr(1), CampaignID: ptr(2), Approvers: []int64{7}},
			want: ErrInvalidSubject,
			code: ErrCodeInvalidSubject,
		},
		{
			name: "unknown workflow type",
			req:  CreateRequest{Approvers: []int64{7}, WorkflowType: "round-robin"},
			want: ErrInvalidRequest,
			code: ErrCodeInvalidRequest,
		},
		{
			name: "unknown priority",
			req:  CreateRequest{Approvers: []int64{7}, Priority: "whenever"},
			want: ErrInvalidRequest,
			code: ErrCodeInvalidRequest,
		},
		{
			name: "negative sla",
			req:  CreateRequest{Approvers: []int64{7}, SLAHours: -1},
			want: ErrInvalidRequest,
			code: ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := setupTestWorkflow(t)

			_, err := engine.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.code, CodeOf(err))

			queue, err := engine.Queue(context.Background(), QueueFilter{})
			require.NoError(t, err)
			assert.Empty(t, queue)
		})
	}
}

func TestApproveAllInAnyOrder(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()
	assetID := insertAsset(t, engine, "hero.jpg")

	id, err := engine.Create(ctx, CreateRequest{AssetID: ptr(assetID), Approvers: []int64{7, 9}})
	require.NoError(t, err)

	status, err := decide(engine, id, 9, Approve)
	require.NoError(t, err)
	assert.Equal(t, Pending, status)

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, approval.CurrentStep)
	assert.Equal(t, Pending, approval.Status)
	assert.Equal(t, "pending", assetStatus(t, engine, assetID))

	status, err = decide(engine, id, 7, Approve)
	require.NoError(t, err)
	assert.Equal(t, Approved, status)

	approval, err = engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Approved, approval.Status)
	assert.NotNil(t, approval.CompletedAt)
	for _, step := range approval.Steps {
		assert.Equal(t, Approved, step.Status)
		assert.NotNil(t, step.ReviewedAt)
	}
	assert.Equal(t, "approved", assetStatus(t, engine, assetID))
}

func TestRejectShortCircuits(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()
	assetID := insertAsset(t, engine, "video.mp4")

	id, err := engine.Create(ctx, CreateRequest{AssetID: ptr(assetID), Approvers: []int64{7, 9, 11}})
	require.NoError(t, err)

	status, err := engine.RecordDecision(ctx, DecisionRequest{
		ApprovalID:      id,
		ReviewerID:      9,
		Decision:        Reject,
		RejectionReason: "off brand",
	})
	require.NoError(t, err)
	assert.Equal(t, Rejected, status)

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Rejected, approval.Status)
	assert.NotNil(t, approval.CompletedAt)
	assert.Equal(t, Pending, approval.Steps[0].Status)
	assert.Equal(t, Rejected, approval.Steps[1].Status)
	assert.Equal(t, "off brand", approval.Steps[1].RejectionReason)
	assert.Equal(t, Pending, approval.Steps[2].Status)
	assert.Equal(t, "rejected", assetStatus(t, engine, assetID))

	_, err = decide(engine, id, 7, Approve)
	require.ErrorIs(t, err, ErrApprovalClosed)
	assert.Equal(t, ErrCodeClosed, CodeOf(err))

	after, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, approval.Steps, after.Steps)
}

func TestDecisionRetryIsNotAnApprover(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{CampaignID: ptr(4), Approvers: []int64{7, 9}})
	require.NoError(t, err)

	_, err = decide(engine, id, 7, Approve)
	require.NoError(t, err)

	_, err = decide(engine, id, 7, Approve)
	require.ErrorIs(t, err, ErrNotAnApprover)

	_, err = decide(engine, id, 42, Reject)
	require.ErrorIs(t, err, ErrNotAnApprover)

	var workflowErr *Error
	require.True(t, errors.As(err, &workflowErr))
	assert.Equal(t, id, workflowErr.ApprovalID)

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Pending, approval.Status)
	assert.Equal(t, 1, approval.CurrentStep)
}

func TestReviewerHoldingTwoSteps(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7, 7}})
	require.NoError(t, err)

	status, err := decide(engine, id, 7, Approve)
	require.NoError(t, err)
	assert.Equal(t, Pending, status)

	steps, err := engine.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Approved, steps[0].Status)
	assert.Equal(t, Pending, steps[1].Status)

	status, err = decide(engine, id, 7, Approve)
	require.NoError(t, err)
	assert.Equal(t, Approved, status)
}

func TestRecordDecisionValidation(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	_, err := decide(engine, 99, 7, Approve)
	require.ErrorIs(t, err, ErrApprovalNotFound)
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7}})
	require.NoError(t, err)

	_, err = decide(engine, id, 7, "maybe")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCampaignApprovalDoesNotPropagate(t *testing.T) {
	var calls int
	propagator := AssetPropagatorFunc(func(tx *db.Tx, assetID int64, status Status) error {
		calls++
		return nil
	})
	engine, _ := setupTestWorkflow(t, WithPropagator(propagator))
	ctx := context.Background()

	campaign, err := engine.Create(ctx, CreateRequest{CampaignID: ptr(5), Approvers: []int64{7}})
	require.NoError(t, err)
	_, err = decide(engine, campaign, 7, Approve)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	asset, err := engine.Create(ctx, CreateRequest{AssetID: ptr(12), Approvers: []int64{7}})
	require.NoError(t, err)
	_, err = decide(engine, asset, 7, Reject)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPropagationFailureSkipsSave(t *testing.T) {
	failure := errors.New("asset service unavailable")
	propagator := AssetPropagatorFunc(func(tx *db.Tx, assetID int64, status Status) error {
		return failure
	})
	engine, _ := setupTestWorkflow(t, WithPropagator(propagator))
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{AssetID: ptr(1), Approvers: []int64{7}})
	require.NoError(t, err)
	before := commitCount(t, engine)

	_, err = decide(engine, id, 7, Approve)
	require.ErrorIs(t, err, failure)
	assert.Equal(t, before, commitCount(t, engine))
}

func TestEachOperationSavesOnce(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()
	before := commitCount(t, engine)

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7, 9, 11}})
	require.NoError(t, err)
	assert.Equal(t, before+1, commitCount(t, engine))

	_, err = decide(engine, id, 7, Approve)
	require.NoError(t, err)
	assert.Equal(t, before+2, commitCount(t, engine))

	_, err = engine.Queue(ctx, QueueFilter{})
	require.NoError(t, err)
	_, err = engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+2, commitCount(t, engine))

	latest := engine.DB().Persistence().LatestTransaction()
	assert.Contains(t, latest.Message, "approve approval")
}

func TestBulkDecisionIsolatesFailures(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	first, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7}})
	require.NoError(t, err)
	second, err := engine.Create(ctx, CreateRequest{Approvers: []int64{8}})
	require.NoError(t, err)
	third, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7}})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, []int64{first, second, third})

	results := engine.BulkDecision(ctx, []int64{1, 2, 3}, 7, Approve, "looks good")
	require.Len(t, results, 3)

	assert.Equal(t, BulkResult{ID: 1, Status: "approved"}, results[0])
	assert.Equal(t, int64(2), results[1].ID)
	assert.Equal(t, "error", results[1].Status)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, BulkResult{ID: 3, Status: "approved"}, results[2])

	approval, err := engine.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Approved, approval.Status)
	assert.Equal(t, "looks good", approval.Steps[0].Comments)

	approval, err = engine.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, Pending, approval.Status)
}

func TestBulkDecisionCanceled(t *testing.T) {
	engine, _ := setupTestWorkflow(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := engine.BulkDecision(ctx, []int64{1, 2}, 7, Reject, "")
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, "error", result.Status)
	}
}

func TestActivityIsRecorded(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7, 9}, SubmittedBy: ptr(3)})
	require.NoError(t, err)
	_, err = decide(engine, id, 7, Approve)
	require.NoError(t, err)
	_, err = decide(engine, id, 9, Approve)
	require.NoError(t, err)

	activity, err := engine.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, activity, 3)

	assert.Equal(t, ActionApproved, activity[0].Action)
	assert.Equal(t, ActionStepApproved, activity[1].Action)
	assert.Equal(t, ActionCreated, activity[2].Action)
	require.NotNil(t, activity[2].UserID)
	assert.Equal(t, int64(3), *activity[2].UserID)
	require.NotNil(t, activity[2].EntityID)
	assert.Equal(t, id, *activity[2].EntityID)
	assert.JSONEq(t, `{"approvers":[7,9],"priority":"normal","workflow_type":"sequential"}`, string(activity[2].Details))

	limited, err := engine.RecentActivity(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ActionApproved, limited[0].Action)
}

func TestCreateWithoutSubmitterStoresNull(t *testing.T) {
	engine, _ := setupTestWorkflow(t)
	ctx := context.Background()

	id, err := engine.Create(ctx, CreateRequest{Approvers: []int64{7}})
	require.NoError(t, err)

	record, err := engine.DB().LookupOne("SELECT * FROM approvals WHERE id = ?", id)
	require.NoError(t, err)
	assert.True(t, record.IsNull("submitted_by"))

	approval, err := engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, approval.SubmittedBy)

	activity, err := engine.RecentActivity(ctx, 1)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, ActionCreated, activity[0].Action)
	assert.Nil(t, activity[0].UserID)
}
