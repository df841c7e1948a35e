package core

import (
	"context"
	"testing"
	"time"
)

// TestTaskID_Unique verifies generated identifiers
// Given: two generated TaskIDs
// When: they are compared and formatted
// Then: they differ and format with the task- prefix
func TestTaskID_Unique(t *testing.T) {
	// Arrange and Act
	a, b := GenerateTaskID(), GenerateTaskID()

	// Assert
	if a == b {
		t.Fatalf("GenerateTaskID returned %v twice", a)
	}
	if b <= a {
		t.Errorf("task ids not increasing: %v then %v", a, b)
	}
	if got := TaskID(7).String(); got != "task-7" {
		t.Errorf("TaskID(7).String() = %q, want %q", got, "task-7")
	}
}

// TestPendingTask_Flags verifies delay and priority classification
// Given: pending tasks with and without delay and best-effort traits
// When: IsDelayed and IsLowPriority are called
// Then: only the matching flags are set
func TestPendingTask_Flags(t *testing.T) {
	tests := []struct {
		name        string
		task        PendingTask
		delayed     bool
		lowPriority bool
	}{
		{"default", PendingTask{Traits: DefaultTaskTraits()}, false, false},
		{"best effort", PendingTask{Traits: TraitsBestEffort()}, false, true},
		{"delayed", PendingTask{Traits: TraitsUserBlocking(), DelayedRunTime: time.Unix(1, 0)}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsDelayed(); got != tt.delayed {
				t.Errorf("IsDelayed() = %v, want %v", got, tt.delayed)
			}
			if got := tt.task.IsLowPriority(); got != tt.lowPriority {
				t.Errorf("IsLowPriority() = %v, want %v", got, tt.lowPriority)
			}
		})
	}
}

// TestGetCurrentTaskRunner verifies extracting task runner from context
// Given: A plain context and a task running on a runner
// When: GetCurrentTaskRunner is called
// Then: It returns nil for plain context and the running runner inside a task
func TestGetCurrentTaskRunner(t *testing.T) {
	// Arrange, Act and Assert - plain context
	if got := GetCurrentTaskRunner(context.Background()); got != nil {
		t.Fatalf("GetCurrentTaskRunner(background) = %#v, want nil", got)
	}

	// Arrange
	runner := newTestRunner("current", nil)
	defer runner.Stop()
	found := make(chan TaskRunner, 1)

	// Act
	runner.PostTask(func(ctx context.Context) {
		found <- GetCurrentTaskRunner(ctx)
	})

	// Assert
	select {
	case got := <-found:
		if got != TaskRunner(runner) {
			t.Fatal("GetCurrentTaskRunner(ctx) did not return the running runner")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}
