package task

import (
	"testing"
	"time"
)

func TestPastDueStrategy_ShouldUpdate(t *testing.T) {
	strategy := NewPastDueStrategy(fixedClock)

	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Minute)

	tests := []struct {
		name   string
		status Status
		due    *time.Time
		want   bool
	}{
		{"not done, due in past", StatusNotDone, &past, true},
		{"not done, due in future", StatusNotDone, &future, false},
		{"not done, due exactly now", StatusNotDone, &fixedNow, false},
		{"not done, no due date", StatusNotDone, nil, false},
		{"done, due in past", StatusDone, &past, false},
		{"done, no due date", StatusDone, nil, false},
		{"past due, due in past", StatusPastDue, &past, false},
		{"past due, no due date", StatusPastDue, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strategy.ShouldUpdate(&Task{Status: tt.status, DueDateTime: tt.due})
			if got != tt.want {
				t.Errorf("ShouldUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPastDueStrategy_NilTask(t *testing.T) {
	if NewPastDueStrategy(nil).ShouldUpdate(nil) {
		t.Error("ShouldUpdate(nil) = true, want false")
	}
}
