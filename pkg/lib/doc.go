// Package lib provides a Go SDK for managing and running fieldbot tasks
// programmatically.
//
// This package allows applications to define tasks, run them against a live
// browser and inspect run history without shelling out to the fieldbot CLI
// binary. It is useful for scripting, automation, and building tools on top
// of fieldbot.
//
// # Quick Start
//
// Create a client, define a task and run it:
//
//	client, err := lib.New(ctx, lib.Config{
//	    BaseURL: "https://tracker.internal",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Define a task.
//	task, err := client.ApplyTask(ctx, lib.Task{
//	    Name: "sprint-dates",
//	    Type: lib.TaskTypeDueDateUpdate,
//	    DueDate: &lib.DueDateConfig{
//	        FieldID:          "duedate",
//	        DaysBeforeTarget: 10,
//	        BusinessDaysOnly: true,
//	    },
//	})
//
//	// Run it against a local WebDriver browser and inspect the outcome.
//	result, err := client.RunTask(ctx, "sprint-dates")
//	fmt.Printf("%s: %d updated\n", result.State, result.Counts.Success)
//
// # Browsers
//
// [Client.RunTask] drives the browser behind the WebDriver endpoint set in
// [Config].WebDriverURL (a local chromedriver or a Selenium container). The
// fieldbot CLI can start a disposable browser container for you; the SDK
// expects the endpoint to already be reachable.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Task does not exist.
//   - [ErrAlreadyExists]: Task with the same name already exists.
//   - [ErrNotValid]: Invalid task definition or operation.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines for task
// management. Runs drive a single browser session, one run at a time.
package lib
