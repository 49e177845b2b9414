package model

import "fmt"

// WorkItem is one unit of automatable work discovered on the currently loaded
// page (e.g. a tracked issue in a results list).
//
// Work items are created fresh on every extraction pass and discarded when the
// run completes. They are never persisted.
type WorkItem struct {
	// Key is the stable external identifier of the item (unique within a run).
	Key string
	// Title is the human-readable summary of the item.
	Title string
	// TargetVersionLabel is the label of the version/release the item is
	// scheduled against. Empty means the item has no target version and the
	// due-date routine will skip it.
	TargetVersionLabel string
	// URL is the address of the item's own page.
	URL string
	// ExtraFields holds any other field values captured opportunistically
	// during extraction. Order is irrelevant.
	ExtraFields map[string]string
}

// FieldUpdateOutcome is the result of attempting to change one field on one
// work item.
//
// Invariants: Succeeded == false implies FailureReason is non-empty.
// Succeeded == true implies NewValue is the value now believed to be saved;
// the value is not independently re-read for verification.
type FieldUpdateOutcome struct {
	Succeeded bool
	ItemKey   string
	FieldName string
	// PriorValue is the field value observed before editing, when it could be
	// read. Best-effort, may be empty.
	PriorValue string
	NewValue   string
	// FailureReason describes why the update failed, in terms useful without
	// re-running (e.g. "element not found: save button").
	FailureReason string
	// SaveConfirmed reports whether the edit surface was observed to close
	// after saving. A successful outcome with SaveConfirmed == false means the
	// save click was dispatched but its effect was never confirmed.
	SaveConfirmed bool
}

// Validate checks the outcome invariants.
func (o FieldUpdateOutcome) Validate() error {
	if o.ItemKey == "" {
		return fmt.Errorf("item key is required: %w", ErrNotValid)
	}
	if o.FieldName == "" {
		return fmt.Errorf("field name is required: %w", ErrNotValid)
	}
	if !o.Succeeded && o.FailureReason == "" {
		return fmt.Errorf("failed outcome requires a failure reason: %w", ErrNotValid)
	}
	return nil
}
