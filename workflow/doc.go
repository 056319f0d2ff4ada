// Package workflow runs approval workflows on top of the record store.
//
// An approval covers an asset or a campaign and holds one review step per
// approver, numbered from zero in the order given. Approving the last
// pending step approves the approval; rejecting any step rejects it at once.
// Both outcomes are copied to the asset's status when the approval covers an
// asset.
//
//	approvals := workflow.NewEngine(engine, workflow.WithLogger(logger))
//	id, err := approvals.Create(ctx, workflow.CreateRequest{
//	    AssetID:   &assetID,
//	    Approvers: []int64{3, 4},
//	    SLAHours:  24,
//	    Priority:  workflow.High,
//	})
//	status, err := approvals.RecordDecision(ctx, workflow.DecisionRequest{
//	    ApprovalID: id,
//	    ReviewerID: 3,
//	    Decision:   workflow.Approve,
//	})
//
// Every operation runs in one store transaction, so it is saved once.
//
// # Reads
//
//   - Queue: approvals by priority then age, with names and ordered steps
//   - SLAWarningCount and Stats: dashboard counts
//   - ExportQueue: the queue as an xlsx workbook
//   - SLAMonitor: a cron job publishing the SLA warning count
package workflow
