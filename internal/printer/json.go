package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/fieldbot/internal/model"
)

// JSONPrinter prints task and run information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskListItem represents a task in the list output (subset of fields).
type taskListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Schedule  string    `json:"schedule,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// taskOutput represents the full task output.
type taskOutput struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Schedule  string         `json:"schedule,omitempty"`
	DueDate   *dueDateOutput `json:"due_date,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// dueDateOutput represents the due-date routine configuration output.
type dueDateOutput struct {
	FieldID          string   `json:"field_id"`
	DaysBeforeTarget int      `json:"days_before_target"`
	BusinessDaysOnly bool     `json:"business_days_only"`
	Holidays         []string `json:"holidays,omitempty"`
}

// runSummaryOutput represents one run history entry.
type runSummaryOutput struct {
	RunID      string    `json:"run_id"`
	TaskID     string    `json:"task_id"`
	TaskName   string    `json:"task_name,omitempty"`
	State      string    `json:"state"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]taskListItem, len(tasks))
	for i, t := range tasks {
		items[i] = taskListItem{
			ID:        t.ID,
			Name:      t.Name,
			Type:      string(t.Type),
			Schedule:  t.Schedule,
			CreatedAt: t.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintTask prints detailed task information in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task) error {
	output := taskOutput{
		ID:        task.ID,
		Name:      task.Name,
		Type:      string(task.Type),
		Schedule:  task.Schedule,
		CreatedAt: task.CreatedAt.UTC(),
		UpdatedAt: task.UpdatedAt.UTC(),
	}

	if task.DueDate != nil {
		output.DueDate = &dueDateOutput{
			FieldID:          task.DueDate.FieldID,
			DaysBeforeTarget: task.DueDate.DaysBeforeTarget,
			BusinessDaysOnly: task.DueDate.BusinessDaysOnly,
			Holidays:         task.DueDate.Holidays,
		}
	}

	return j.encode(output)
}

// PrintRunHistory prints run summaries in JSON format.
func (j *JSONPrinter) PrintRunHistory(summaries []model.RunSummary) error {
	items := make([]runSummaryOutput, len(summaries))
	for i, s := range summaries {
		items[i] = runSummaryOutput{
			RunID:      s.RunID,
			TaskID:     s.TaskID,
			TaskName:   s.TaskName,
			State:      string(s.State),
			Total:      s.Counts.Total,
			Success:    s.Counts.Success,
			Failed:     s.Counts.Failed,
			Skipped:    s.Counts.Skipped,
			Error:      s.Error,
			StartedAt:  s.StartedAt.UTC(),
			FinishedAt: s.FinishedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v interface{}) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
