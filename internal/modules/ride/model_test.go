package ride

import "testing"

// TestCanTransition verifies the state machine transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		// no cancel once the trip has started
		{StatusInProgress, StatusCancelled, false},
		// terminal states have no outgoing transitions
		{StatusCompleted, StatusRequested, false},
		{StatusCancelled, StatusRequested, false},
		{StatusCompleted, StatusCancelled, false},
		// skipping states
		{StatusRequested, StatusInProgress, false},
		{StatusRequested, StatusCompleted, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusNone, StatusAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	for _, s := range []Status{StatusRequested, StatusAccepted, StatusInProgress} {
		if !IsActive(s) {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusNone, StatusCompleted, StatusCancelled} {
		if IsActive(s) {
			t.Errorf("%s should not be active", s)
		}
	}
}
