package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const queueSheet = "Queue"

var queueColumns = []string{
	"ID", "Subject", "Name", "Workflow", "Status", "Priority",
	"Step", "Submitted By", "SLA Deadline", "Created", "Approvers",
}

// ExportQueue writes the queue selected by filter as an xlsx workbook.
func (engine *Engine) ExportQueue(ctx context.Context, w io.Writer, filter QueueFilter) error {
	approvals, err := engine.Queue(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(queueSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, column := range queueColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(queueSheet, cell, column)
		f.SetCellStyle(queueSheet, cell, cell, headerStyle)
	}

	for row, approval := range approvals {
		for col, value := range queueRow(approval) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(queueSheet, cell, value); err != nil {
				return err
			}
		}
	}

	for i := range queueColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(queueSheet, col, col, 15)
	}

	_, err = f.WriteTo(w)
	return err
}

func queueRow(approval Approval) []any {
	name := approval.AssetName
	if name == "" {
		name = approval.CampaignTitle
	}

	submittedBy := approval.SubmittedByName
	if submittedBy == "" && approval.SubmittedBy != nil {
		submittedBy = fmt.Sprint(*approval.SubmittedBy)
	}

	deadline := ""
	if approval.SLADeadline != nil {
		deadline = approval.SLADeadline.Format(time.DateTime)
	}

	approvers := make([]string, 0, len(approval.Steps))
	for _, step := range approval.Steps {
		approver := step.ApproverName
		if approver == "" {
			approver = fmt.Sprint(step.ApproverID)
		}
		approvers = append(approvers, fmt.Sprintf("%s (%s)", approver, step.Status))
	}

	return []any{
		approval.ID,
		approval.Subject(),
		name,
		string(approval.WorkflowType),
		string(approval.Status),
		string(approval.Priority),
		fmt.Sprintf("%d/%d", approval.CurrentStep, approval.TotalSteps),
		submittedBy,
		deadline,
		approval.CreatedAt.Format(time.DateTime),
		strings.Join(approvers, ", "),
	}
}
