// Package autosave turns bursts of answer edits into debounced, deduplicated
// saves that are sent to the delivery API one at a time.
package autosave

import (
	"fmt"
	"strings"
	"time"
)

// FieldKey identifies one answer field. Sequence numbers are only unique
// within a page, so the page is part of the key.
type FieldKey struct {
	Page     int
	Sequence int
}

func (k FieldKey) String() string {
	return fmt.Sprintf("p%d#%d", k.Page, k.Sequence)
}

// Task is one pending save: the normalized wire value for a field.
type Task struct {
	SessionID string
	Key       FieldKey
	Value     string
}

// empty reports whether the task carries nothing worth saving.
func (t Task) empty() bool {
	return strings.TrimSpace(t.Value) == ""
}

// RetryConfig bounds how hard the queue tries to deliver one task.
type RetryConfig struct {
	// MaxAttempts is the total number of sends per task. 1 disables retry.
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     2 * time.Second,
		Multiplier:  2.0,
	}
}
