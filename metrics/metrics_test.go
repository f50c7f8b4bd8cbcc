package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_RecordSuccess(t *testing.T) {
	r := NewRegistry()
	r.RecordSuccess("a", 1500*time.Millisecond)

	st := r.Snapshot()["a"]
	if st.Successes != 1 || st.Failures != 0 {
		t.Errorf("stats = %+v, want one success", st)
	}
	if st.LastDurationMs != 1500 {
		t.Errorf("LastDurationMs = %d, want 1500", st.LastDurationMs)
	}
	if st.LastSuccessAt.IsZero() {
		t.Error("LastSuccessAt not stamped")
	}
}

func TestRegistry_SuccessResetsConsecutiveFailures(t *testing.T) {
	r := NewRegistry()
	r.RecordFailure("a", "LOAD_TIMEOUT")
	r.RecordFailure("a", "LOAD_TIMEOUT")
	r.RecordSuccess("a", time.Second)

	st := r.Snapshot()["a"]
	if st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", st.ConsecutiveFailures)
	}
	if st.Failures != 2 {
		t.Errorf("Failures = %d, want total preserved", st.Failures)
	}
	if st.LastErrorKind != "" {
		t.Errorf("LastErrorKind = %q, want cleared", st.LastErrorKind)
	}
}

func TestRegistry_FailureTracksKind(t *testing.T) {
	r := NewRegistry()
	r.RecordFailure("a", "BLOCKED_HOST")

	st := r.Snapshot()["a"]
	if st.LastErrorKind != "BLOCKED_HOST" || st.ConsecutiveFailures != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.RecordSuccess("a", time.Second)

	snap := r.Snapshot()
	entry := snap["a"]
	entry.Successes = 99
	snap["a"] = entry

	if got := r.Snapshot()["a"].Successes; got != 1 {
		t.Errorf("Successes = %d, snapshot mutation leaked into registry", got)
	}
}

func TestRegistry_ConcurrentRecords(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RecordSuccess("a", time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			r.RecordFailure("b", "NAVIGATION_FAILED")
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	if snap["a"].Successes != 50 {
		t.Errorf("a successes = %d, want 50", snap["a"].Successes)
	}
	if snap["b"].Failures != 50 {
		t.Errorf("b failures = %d, want 50", snap["b"].Failures)
	}
}
