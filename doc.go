// Package AdOrchDB is the data core of an ad-campaign asset approval system.
//
// Records live in named in-memory collections that are written to a single
// JSON snapshot file after every change. With history enabled each snapshot
// write is a Git commit, so the store can be tagged, inspected and restored
// to any earlier state.
//
// # Quick Start
//
// Open an in-memory store and run an approval:
//
//	persistence, _ := ps.NewMemoryPersistence()
//	instance := AdOrchDB.Open(persistence)
//	approvals, _ := instance.Workflow(core.Identity{Name: "App", Email: "app@example.com"})
//
//	id, _ := approvals.Create(ctx, workflow.CreateRequest{
//		AssetID:   &assetID,
//		Approvers: []int64{7, 9},
//		SLAHours:  24,
//	})
//	approvals.RecordDecision(ctx, workflow.DecisionRequest{
//		ApprovalID: id,
//		ReviewerID: 7,
//		Decision:   workflow.Approve,
//	})
//
// # Supported statements
//
// The record engine accepts a small textual dialect with ? placeholders:
//   - SELECT ... FROM t [WHERE column = ?]
//   - SELECT COUNT(*) FROM t [WHERE status = ? | type = ? | sla_deadline < ? [AND status = ...]]
//   - INSERT INTO t (columns) VALUES (...)
//   - UPDATE t SET column = ?, ... WHERE id = ?
//   - DELETE FROM t WHERE id = ?
//
// Joins, ORDER BY and LIMIT are accepted but not evaluated. The same
// statements can be built directly with the sql package.
package AdOrchDB
