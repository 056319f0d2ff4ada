package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/workflow"
	"github.com/spf13/cobra"
)

func NewApprovalsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "approvals",
		Aliases: []string{"approval", "ap"},
		Short:   "Run and inspect approval workflows",
	}

	cmd.AddCommand(newApprovalCreateCommand(rootOpts))
	cmd.AddCommand(newApprovalDecideCommand(rootOpts))
	cmd.AddCommand(newApprovalBulkCommand(rootOpts))
	cmd.AddCommand(newApprovalQueueCommand(rootOpts))
	cmd.AddCommand(newApprovalShowCommand(rootOpts))
	cmd.AddCommand(newApprovalStatsCommand(rootOpts))
	cmd.AddCommand(newApprovalSLACommand(rootOpts))
	cmd.AddCommand(newApprovalExportCommand(rootOpts))
	cmd.AddCommand(newApprovalActivityCommand(rootOpts))

	return cmd
}

func newApprovalCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		assetID      int64
		campaignID   int64
		approvers    []int64
		workflowType string
		priority     string
		slaHours     float64
		submittedBy  int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an approval for an asset or campaign",
		Example: `  adorch approvals create --asset 12 --approvers 3,4 --priority high --sla 24
  adorch approvals create --campaign 2 --approvers 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			req := workflow.CreateRequest{
				WorkflowType: workflow.WorkflowType(workflowType),
				Approvers:    approvers,
				SLAHours:     slaHours,
				Priority:     workflow.Priority(priority),
			}
			if cmd.Flags().Changed("asset") {
				req.AssetID = &assetID
			}
			if cmd.Flags().Changed("campaign") {
				req.CampaignID = &campaignID
			}
			if cmd.Flags().Changed("submitted-by") {
				req.SubmittedBy = &submittedBy
			}

			id, err := s.workflow.Create(cmd.Context(), req)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, map[string]int64{"id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "%s✓ Created approval %d%s\n", SuccessColor, id, ResetColor)
			})
		},
	}

	cmd.Flags().Int64Var(&assetID, "asset", 0, "asset id")
	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "campaign id")
	cmd.Flags().Int64SliceVar(&approvers, "approvers", nil, "reviewer user ids, in review order")
	cmd.Flags().StringVar(&workflowType, "type", "", "workflow type (sequential|parallel)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (urgent|high|normal)")
	cmd.Flags().Float64Var(&slaHours, "sla", 0, "hours until the SLA deadline, 0 for none")
	cmd.Flags().Int64Var(&submittedBy, "submitted-by", 0, "submitting user id")
	_ = cmd.MarkFlagRequired("approvers")

	return cmd
}

func newApprovalDecideCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		reviewerID int64
		comments   string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "decide <approval-id> <approve|reject>",
		Short: "Record a reviewer's decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid approval id %q", args[0])
			}

			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			status, err := s.workflow.RecordDecision(cmd.Context(), workflow.DecisionRequest{
				ApprovalID:      id,
				ReviewerID:      reviewerID,
				Decision:        workflow.Decision(strings.ToLower(args[1])),
				Comments:        comments,
				RejectionReason: reason,
			})
			if err != nil {
				return err
			}

			data := map[string]any{"id": id, "status": status}
			return output(cmd.OutOrStdout(), rootOpts.Format, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s✓ Approval %d is %s%s\n", SuccessColor, id, status, ResetColor)
			})
		},
	}

	cmd.Flags().Int64Var(&reviewerID, "reviewer", 0, "reviewing user id")
	cmd.Flags().StringVar(&comments, "comments", "", "review comments")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}

func newApprovalBulkCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		reviewerID int64
		comments   string
	)

	cmd := &cobra.Command{
		Use:   "bulk <approve|reject> <approval-id>...",
		Short: "Record one decision on several approvals",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid approval id %q", arg)
				}
				ids = append(ids, id)
			}

			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			results := s.workflow.BulkDecision(cmd.Context(), ids, reviewerID, workflow.Decision(strings.ToLower(args[0])), comments)

			return output(cmd.OutOrStdout(), rootOpts.Format, results, func(w io.Writer) {
				table := db.NewTable(w)
				table.Header([]string{"id", "status", "error"})
				for _, result := range results {
					table.Row([]string{strconv.FormatInt(result.ID, 10), result.Status, result.Error})
				}
				table.Render()
			})
		},
	}

	cmd.Flags().Int64Var(&reviewerID, "reviewer", 0, "reviewing user id")
	cmd.Flags().StringVar(&comments, "comments", "", "review comments")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}

func newApprovalQueueCommand(rootOpts *RootOptions) *cobra.Command {
	var filter queueFlags

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List approvals, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			queue, err := s.workflow.Queue(cmd.Context(), filter.filter())
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, queue, func(w io.Writer) {
				renderQueue(w, queue)
			})
		},
	}

	filter.register(cmd)
	return cmd
}

func newApprovalShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "show <approval-id>",
		Aliases: []string{"get", "history"},
		Short:   "Show an approval and its review steps",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid approval id %q", args[0])
			}

			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			approval, err := s.workflow.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, approval, func(w io.Writer) {
				renderApproval(w, approval)
			})
		},
	}
}

func newApprovalStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			stats, err := s.workflow.Stats(cmd.Context())
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, stats, func(w io.Writer) {
				table := db.NewTable(w)
				table.Header([]string{"pending", "approved", "rejected", "sla warnings"})
				table.Row([]string{
					strconv.Itoa(stats.Pending),
					strconv.Itoa(stats.Approved),
					strconv.Itoa(stats.Rejected),
					strconv.Itoa(stats.SLAWarnings),
				})
				table.Render()
			})
		},
	}
}

func newApprovalSLACommand(rootOpts *RootOptions) *cobra.Command {
	var horizon time.Duration

	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Count pending approvals due within the horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			if !cmd.Flags().Changed("horizon") {
				horizon = s.cfg.SLAHorizon
			}

			count, err := s.workflow.SLAWarningCount(cmd.Context(), horizon)
			if err != nil {
				return err
			}

			data := map[string]any{"horizon": horizon.String(), "count": count}
			return output(cmd.OutOrStdout(), rootOpts.Format, data, func(w io.Writer) {
				fmt.Fprintf(w, "%d pending approval(s) due within %s\n", count, horizon)
			})
		},
	}

	cmd.Flags().DurationVar(&horizon, "horizon", workflow.DashboardHorizon, "warning window")
	return cmd
}

func newApprovalExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filter queueFlags
		file   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the queue to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			f, err := os.Create(file)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", file, err)
			}
			if err := s.workflow.ExportQueue(cmd.Context(), f, filter.filter()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Exported queue to %s%s\n", SuccessColor, file, ResetColor)
			return nil
		},
	}

	filter.register(cmd)
	cmd.Flags().StringVarP(&file, "output", "o", "approvals.xlsx", "workbook path")
	return cmd
}

func newApprovalActivityCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the most recent workflow activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer s.close()

			activity, err := s.workflow.RecentActivity(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, activity, func(w io.Writer) {
				table := db.NewTable(w)
				table.Header([]string{"when", "action", "entity", "user", "details"})
				for _, entry := range activity {
					table.Row([]string{
						entry.CreatedAt,
						entry.Action,
						fmt.Sprintf("%s %s", entry.EntityType, optionalInt(entry.EntityID)),
						optionalInt(entry.UserID),
						string(entry.Details),
					})
				}
				table.Render()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

// queueFlags are the filters shared by queue and export.
type queueFlags struct {
	status   string
	priority string
}

func (q *queueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.status, "status", "", "only approvals with this status")
	cmd.Flags().StringVar(&q.priority, "priority", "", "only approvals with this priority")
}

func (q *queueFlags) filter() workflow.QueueFilter {
	return workflow.QueueFilter{
		Status:   workflow.Status(q.status),
		Priority: workflow.Priority(q.priority),
	}
}

func renderQueue(w io.Writer, queue []workflow.Approval) {
	if len(queue) == 0 {
		fmt.Fprintln(w, "No approvals")
		return
	}

	table := db.NewTable(w)
	table.Header([]string{"id", "subject", "priority", "status", "step", "sla deadline"})
	for _, approval := range queue {
		subject := approval.Subject()
		if name := firstNonEmpty(approval.AssetName, approval.CampaignTitle); name != "" {
			subject += " (" + name + ")"
		}
		table.Row([]string{
			strconv.FormatInt(approval.ID, 10),
			subject,
			string(approval.Priority),
			string(approval.Status),
			fmt.Sprintf("%d/%d", approval.CurrentStep, approval.TotalSteps),
			optionalTime(approval.SLADeadline),
		})
	}
	table.Render()
}

func renderApproval(w io.Writer, approval workflow.Approval) {
	fmt.Fprintf(w, "%sApproval %d%s  %s, %s, %s priority\n",
		BoldColor, approval.ID, ResetColor, approval.Subject(), approval.Status, approval.Priority)
	fmt.Fprintf(w, "  workflow:  %s, step %d of %d\n", approval.WorkflowType, approval.CurrentStep, approval.TotalSteps)
	fmt.Fprintf(w, "  deadline:  %s\n", optionalTime(approval.SLADeadline))
	fmt.Fprintf(w, "  created:   %s\n", approval.CreatedAt.Format(time.DateTime))
	if approval.CompletedAt != nil {
		fmt.Fprintf(w, "  completed: %s\n", approval.CompletedAt.Format(time.DateTime))
	}
	fmt.Fprintln(w)

	table := db.NewTable(w)
	table.Header([]string{"step", "approver", "status", "reviewed", "comments"})
	for _, step := range approval.Steps {
		approver := firstNonEmpty(step.ApproverName, strconv.FormatInt(step.ApproverID, 10))
		comments := firstNonEmpty(step.RejectionReason, step.Comments)
		table.Row([]string{
			strconv.Itoa(step.StepNumber),
			approver,
			string(step.Status),
			optionalTime(step.ReviewedAt),
			comments,
		})
	}
	table.Render()
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateTime)
}

func optionalInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
