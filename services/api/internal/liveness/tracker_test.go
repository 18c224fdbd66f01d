package liveness

import (
	"sync"
	"testing"
	"time"
)

func TestNeverSeenIsInactive(t *testing.T) {
	tr := NewTracker(0)
	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	if tr.IsActive(now) {
		t.Error("tracker with no activity should be inactive")
	}
	st := tr.Status(now)
	if st.Active || st.LastPing != nil {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestWindow(t *testing.T) {
	tr := NewTracker(0)
	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	tr.RecordActivity(now)

	tests := []struct {
		after time.Duration
		want  bool
	}{
		{0, true},
		{29 * time.Second, true},
		{30*time.Second - time.Millisecond, true},
		{30 * time.Second, false},
		{5 * time.Minute, false},
	}
	for _, tt := range tests {
		if got := tr.IsActive(now.Add(tt.after)); got != tt.want {
			t.Errorf("after %v: got %v, want %v", tt.after, got, tt.want)
		}
	}

	st := tr.Status(now.Add(10 * time.Second))
	if !st.Active {
		t.Error("expected active status")
	}
	if st.LastPing == nil || !st.LastPing.Equal(now) {
		t.Errorf("expected lastPing %v, got %v", now, st.LastPing)
	}
}

func TestRecordActivityRefreshes(t *testing.T) {
	tr := NewTracker(10 * time.Second)
	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	tr.RecordActivity(now)
	tr.RecordActivity(now.Add(8 * time.Second))
	if !tr.IsActive(now.Add(15 * time.Second)) {
		t.Error("second ping should extend the window")
	}

	// a late, older timestamp must not move the record back
	tr.RecordActivity(now)
	if !tr.IsActive(now.Add(15 * time.Second)) {
		t.Error("older timestamp moved lastPing backwards")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Second)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.RecordActivity(now.Add(time.Duration(i) * time.Millisecond))
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Status(now)
		}()
	}
	wg.Wait()

	st := tr.Status(now)
	if st.LastPing == nil || !st.LastPing.Equal(now.Add(49*time.Millisecond)) {
		t.Errorf("expected latest ping to win, got %v", st.LastPing)
	}
}
