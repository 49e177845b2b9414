package lib_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/fieldbot/pkg/lib"
)

// This example shows how to define a task and read it back.
func Example_tasks() {
	ctx := context.Background()

	// Use a temp directory for the example database.
	dir, err := os.MkdirTemp("", "fieldbot-example-tasks-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath: filepath.Join(dir, "fieldbot.db"),
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	// Define a task.
	task, err := client.ApplyTask(ctx, lib.Task{
		Name: "sprint-dates",
		Type: lib.TaskTypeDueDateUpdate,
		DueDate: &lib.DueDateConfig{
			FieldID:          "duedate",
			DaysBeforeTarget: 10,
			BusinessDaysOnly: true,
		},
	})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Applied: %s (%s)\n", task.Name, task.Type)

	// Output:
	// Applied: sprint-dates (due_date_update)
}

// This example shows how to inspect SDK errors.
func Example_errors() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "fieldbot-example-errors-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath: filepath.Join(dir, "fieldbot.db"),
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	_, err = client.GetTask(ctx, "missing")
	if errors.Is(err, lib.ErrNotFound) {
		fmt.Println("task does not exist")
	}

	// Output:
	// task does not exist
}
