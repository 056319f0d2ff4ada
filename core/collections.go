package core

// Built-in collection names.
const (
	Users         = "users"
	Campaigns     = "campaigns"
	Assets        = "assets"
	Approvals     = "approvals"
	ApprovalSteps = "approval_steps"
	AIGenerations = "ai_generations"
	Notifications = "notifications"
	ActivityLog   = "activity_log"
)

// BuiltinCollections are created empty on a fresh store, in snapshot order.
var BuiltinCollections = []string{
	Users,
	Campaigns,
	Assets,
	Approvals,
	ApprovalSteps,
	AIGenerations,
	Notifications,
	ActivityLog,
}
