package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
)

func TestTracker_StartFinish(t *testing.T) {
	m := metrics.New(nil)
	tr := NewTracker(m.InflightStatements)

	exec := tr.Start("SELECT 1", "DB", func() {})
	if exec.Handle == "" {
		t.Fatal("expected handle to be set")
	}
	if !strings.HasPrefix(exec.Handle, "01") {
		t.Errorf("handle %q should start with 01", exec.Handle)
	}
	if exec.Status != ExecutionRunning {
		t.Errorf("status = %s, want %s", exec.Status, ExecutionRunning)
	}
	if got := testutil.ToFloat64(m.InflightStatements); got != 1 {
		t.Errorf("inflight gauge = %v, want 1", got)
	}

	if !tr.Finish(exec.Handle) {
		t.Error("Finish() = false for tracked execution")
	}
	if tr.Finish(exec.Handle) {
		t.Error("second Finish() = true, want false")
	}
	if got := testutil.ToFloat64(m.InflightStatements); got != 0 {
		t.Errorf("inflight gauge = %v, want 0", got)
	}
}

func TestTracker_Abandon(t *testing.T) {
	tr := NewTracker(nil)
	exec := tr.Start("SELECT 1", "", nil)

	if !tr.Abandon(exec.Handle) {
		t.Fatal("Abandon() = false for tracked execution")
	}
	if tr.Abandon("unknown") {
		t.Error("Abandon(unknown) = true")
	}

	list := tr.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
	if list[0].Status != ExecutionAbandoned {
		t.Errorf("status = %s, want %s", list[0].Status, ExecutionAbandoned)
	}
}

func TestTracker_ClearCancels(t *testing.T) {
	m := metrics.New(nil)
	tr := NewTracker(m.InflightStatements)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	first := tr.Start("SELECT 1", "", cancel1)
	tr.Start("SELECT 2", "", cancel2)

	if got := tr.Clear(); got != 2 {
		t.Errorf("Clear() = %d, want 2", got)
	}
	for i, ctx := range []context.Context{ctx1, ctx2} {
		if ctx.Err() == nil {
			t.Errorf("execution %d was not canceled", i)
		}
	}
	if tr.Len() != 0 {
		t.Errorf("Len() = %d after Clear", tr.Len())
	}
	if tr.Finish(first.Handle) {
		t.Error("Finish() after Clear = true, want false")
	}
	if got := testutil.ToFloat64(m.InflightStatements); got != 0 {
		t.Errorf("inflight gauge = %v, want 0", got)
	}
}

func TestTracker_ListOrder(t *testing.T) {
	tr := NewTracker(nil)
	a := tr.Start("SELECT 1", "", nil)
	time.Sleep(time.Millisecond)
	b := tr.Start("SELECT 2", "DB", nil)

	got := make([]string, 0, 2)
	for _, e := range tr.List() {
		got = append(got, e.Handle)
	}
	if diff := cmp.Diff([]string{a.Handle, b.Handle}, got); diff != "" {
		t.Errorf("List() order mismatch (-want +got):\n%s", diff)
	}
}
