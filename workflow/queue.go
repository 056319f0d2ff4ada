package workflow

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/metrics"
	"github.com/nickyhof/AdOrchDB/sql"
)

// DashboardHorizon is the SLA warning window used by Stats.
const DashboardHorizon = 24 * time.Hour

// Queue returns the approvals matching filter, urgent first, then high, then
// normal, oldest first within a priority. Each carries its ordered steps.
func (engine *Engine) Queue(ctx context.Context, filter QueueFilter) ([]Approval, error) {
	return db.InTransaction(ctx, engine.db, func(tx *db.Tx) ([]Approval, error) {
		find := sql.FindAll(core.Approvals)
		if filter.Status != "" {
			find = sql.FindWhere(core.Approvals, "status", string(filter.Status))
		}

		records, err := tx.Find(find)
		if err != nil {
			return nil, err
		}

		names, err := newDirectory(tx)
		if err != nil {
			return nil, err
		}

		steps, err := stepsByApproval(tx)
		if err != nil {
			return nil, err
		}

		approvals := make([]Approval, 0, len(records))
		for _, record := range records {
			approval := approvalFromRecord(record)
			if filter.Priority != "" && approval.Priority != filter.Priority {
				continue
			}
			names.annotate(&approval, steps[approval.ID])
			approvals = append(approvals, approval)
		}

		slices.SortStableFunc(approvals, compareQueue)
		return approvals, nil
	})
}

func compareQueue(a, b Approval) int {
	if c := cmp.Compare(a.Priority.rank(), b.Priority.rank()); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SLAWarningCount counts pending approvals whose deadline falls before
// now + horizon.
func (engine *Engine) SLAWarningCount(ctx context.Context, horizon time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	limit := engine.now().Add(horizon)
	return engine.db.Count(sql.CountWhere(core.Approvals, sql.PendingDeadlineBefore(limit)))
}

// Stats returns the dashboard counts.
func (engine *Engine) Stats(ctx context.Context) (Stats, error) {
	limit := engine.now().Add(DashboardHorizon)

	stats, err := db.InTransaction(ctx, engine.db, func(tx *db.Tx) (Stats, error) {
		var stats Stats
		var err error

		if stats.Pending, err = tx.Count(sql.CountWhere(core.Approvals, sql.Eq("status", string(Pending)))); err != nil {
			return Stats{}, err
		}
		if stats.Approved, err = tx.Count(sql.CountWhere(core.Approvals, sql.Eq("status", string(Approved)))); err != nil {
			return Stats{}, err
		}
		if stats.Rejected, err = tx.Count(sql.CountWhere(core.Approvals, sql.Eq("status", string(Rejected)))); err != nil {
			return Stats{}, err
		}
		if stats.SLAWarnings, err = tx.Count(sql.CountWhere(core.Approvals, sql.PendingDeadlineBefore(limit))); err != nil {
			return Stats{}, err
		}
		return stats, nil
	})
	if err != nil {
		return Stats{}, err
	}

	metrics.SetSLAWarnings(stats.SLAWarnings)
	return stats, nil
}

func stepsByApproval(tx *db.Tx) (map[int64][]Step, error) {
	records, err := tx.Find(sql.FindAll(core.ApprovalSteps))
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]Step)
	for _, record := range records {
		step := stepFromRecord(record)
		grouped[step.ApprovalID] = append(grouped[step.ApprovalID], step)
	}
	for _, steps := range grouped {
		slices.SortStableFunc(steps, func(a, b Step) int {
			if c := cmp.Compare(a.StepNumber, b.StepNumber); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	}
	return grouped, nil
}

// directory resolves display names from the users, assets and campaigns
// collections.
type directory struct {
	users     map[int64]string
	assets    map[int64]string
	campaigns map[int64]string
}

func newDirectory(tx *db.Tx) (*directory, error) {
	users, err := nameIndex(tx, core.Users, "name")
	if err != nil {
		return nil, err
	}
	assets, err := nameIndex(tx, core.Assets, "original_name")
	if err != nil {
		return nil, err
	}
	campaigns, err := nameIndex(tx, core.Campaigns, "title")
	if err != nil {
		return nil, err
	}
	return &directory{users: users, assets: assets, campaigns: campaigns}, nil
}

func nameIndex(tx *db.Tx, collection, field string) (map[int64]string, error) {
	records, err := tx.Find(sql.FindAll(collection))
	if err != nil {
		return nil, err
	}
	index := make(map[int64]string, len(records))
	for _, record := range records {
		index[record.ID()] = record.String(field)
	}
	return index, nil
}

func (d *directory) annotate(approval *Approval, steps []Step) {
	if approval.AssetID != nil {
		approval.AssetName = d.assets[*approval.AssetID]
	}
	if approval.CampaignID != nil {
		approval.CampaignTitle = d.campaigns[*approval.CampaignID]
	}
	if approval.SubmittedBy != nil {
		approval.SubmittedByName = d.users[*approval.SubmittedBy]
	}

	approval.Steps = make([]Step, len(steps))
	for i, step := range steps {
		step.ApproverName = d.users[step.ApproverID]
		approval.Steps[i] = step
	}
}
