package throttle

import (
	"testing"
	"time"
)

func TestNotOutputNoPending(t *testing.T) {
	th := New()
	if th.HasPending() {
		t.Fatal("fresh throttler should have no pending render")
	}
}

func TestShouldFlushAfterDelay(t *testing.T) {
	th := New()
	now := time.Now()
	th.NotifyOutput(now)
	if th.ShouldFlush(now) {
		t.Fatal("should not flush immediately")
	}
	if !th.ShouldFlush(now.Add(RenderDelay + time.Millisecond)) {
		t.Fatal("should flush after RenderDelay elapses")
	}
}

func TestSyncBlockWidensDelay(t *testing.T) {
	th := New()
	th.SetDelay(SyncBlockDelay)
	now := time.Now()
	th.NotifyOutput(now)
	if th.ShouldFlush(now.Add(RenderDelay + time.Millisecond)) {
		t.Fatal("should not flush at steady-state delay while widened")
	}
	if !th.ShouldFlush(now.Add(SyncBlockDelay + time.Millisecond)) {
		t.Fatal("should flush after SyncBlockDelay elapses")
	}
}

func TestMarkFlushedClearsPending(t *testing.T) {
	th := New()
	now := time.Now()
	th.NotifyOutput(now)
	th.MarkFlushed()
	if th.HasPending() {
		t.Fatal("pending should be cleared after MarkFlushed")
	}
}

func TestPollTimeoutCapsAtMaxPoll(t *testing.T) {
	th := New()
	now := time.Now()
	if got := th.PollTimeout(now); got != MaxPoll {
		t.Fatalf("PollTimeout() = %v, want %v", got, MaxPoll)
	}
}

func TestPollTimeoutNeverNegative(t *testing.T) {
	th := New()
	now := time.Now()
	th.NotifyOutput(now)
	if got := th.PollTimeout(now.Add(time.Second)); got < 0 {
		t.Fatalf("PollTimeout() went negative: %v", got)
	}
}
