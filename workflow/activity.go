package workflow

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/sql"
)

// Activity actions written by the engine.
const (
	ActionCreated      = "approval.created"
	ActionStepApproved = "approval.step_approved"
	ActionApproved     = "approval.approved"
	ActionRejected     = "approval.rejected"

	entityApproval = "approval"
)

// Activity is one entry of the activity log.
type Activity struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

func logActivity(tx *db.Tx, userID *int64, action string, approvalID int64, details map[string]any) error {
	var blob any
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return err
		}
		blob = json.RawMessage(encoded)
	}

	_, err := tx.Exec(sql.InsertInto(core.ActivityLog, sql.Fields{
		"user_id":     userID,
		"action":      action,
		"entity_type": entityApproval,
		"entity_id":   approvalID,
		"details":     blob,
	}))
	return err
}

// RecentActivity returns the newest activity entries first. A limit of zero
// or less returns everything.
func (engine *Engine) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := engine.db.Find(sql.FindAll(core.ActivityLog))
	if err != nil {
		return nil, err
	}

	activities := make([]Activity, 0, len(records))
	for _, record := range records {
		details, _ := record["details"].(json.RawMessage)
		activities = append(activities, Activity{
			ID:         record.ID(),
			UserID:     optionalID(record, "user_id"),
			Action:     record.String("action"),
			EntityType: record.String("entity_type"),
			EntityID:   optionalID(record, "entity_id"),
			Details:    details,
			CreatedAt:  record.String(core.FieldCreatedAt),
		})
	}

	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].CreatedAt != activities[j].CreatedAt {
			return activities[i].CreatedAt > activities[j].CreatedAt
		}
		return activities[i].ID > activities[j].ID
	})

	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}
