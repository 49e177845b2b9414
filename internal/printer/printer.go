package printer

import "github.com/slok/fieldbot/internal/model"

// Printer knows how to print task and run information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task) error
	PrintRunHistory(summaries []model.RunSummary) error
	PrintMessage(msg string) error
}
