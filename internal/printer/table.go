package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/slok/fieldbot/internal/model"
	"github.com/slok/fieldbot/internal/schedule"
)

// TablePrinter prints task and run information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "NAME\tTYPE\tSCHEDULE\tNEXT RUN\tCREATED")

	// Print rows
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", task.Name, task.Type, scheduleOrDash(task.Schedule), nextRun(task.Schedule), TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintTask prints detailed task information.
func (t *TablePrinter) PrintTask(task model.Task) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", task.Name)
	fmt.Fprintf(t.writer, "ID:         %s\n", task.ID)
	fmt.Fprintf(t.writer, "Type:       %s\n", task.Type)
	fmt.Fprintf(t.writer, "Schedule:   %s\n", scheduleOrDash(task.Schedule))

	if task.Schedule != "" {
		fmt.Fprintf(t.writer, "Next run:   %s\n", nextRun(task.Schedule))
	}

	if task.DueDate != nil {
		fmt.Fprintf(t.writer, "Field:      %s\n", task.DueDate.FieldID)
		fmt.Fprintf(t.writer, "Days ahead: %d\n", task.DueDate.DaysBeforeTarget)
		fmt.Fprintf(t.writer, "Business:   %t\n", task.DueDate.BusinessDaysOnly)
		if len(task.DueDate.Holidays) > 0 {
			fmt.Fprintf(t.writer, "Holidays:   %s\n", strings.Join(task.DueDate.Holidays, ", "))
		}
	}

	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(task.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:    %s\n", FormatTimestamp(task.UpdatedAt))

	return nil
}

// PrintRunHistory prints run summaries in a table format.
func (t *TablePrinter) PrintRunHistory(summaries []model.RunSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "TASK\tSTATE\tTOTAL\tSUCCESS\tFAILED\tSKIPPED\tFINISHED")

	// Print rows.
	for _, s := range summaries {
		name := s.TaskName
		if name == "" {
			name = s.TaskID
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			name,
			s.State,
			s.Counts.Total,
			s.Counts.Success,
			s.Counts.Failed,
			s.Counts.Skipped,
			TimeAgo(s.FinishedAt),
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func scheduleOrDash(expr string) string {
	if expr == "" {
		return "-"
	}
	return expr
}

func nextRun(expr string) string {
	next, ok, err := schedule.NextRun(expr, time.Now())
	if err != nil || !ok {
		return "-"
	}
	return FormatTimestamp(next)
}
