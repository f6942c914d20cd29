package observ

import (
	"strings"
	"testing"
	"time"
)

func fakeClock(step time.Duration) func() time.Time {
	cur := time.Unix(0, 0)
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	tm.now = fakeClock(time.Millisecond)

	load := tm.Begin("load")
	if got := tm.End(load, "3 files"); got != time.Millisecond {
		t.Fatalf("End returned %v", got)
	}
	validate := tm.Begin("validate")
	tm.End(validate, "")
	tm.End(99, "ignored")

	report := tm.Report()
	if len(report.Phases) != 2 || report.TotalMS != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Phases[0].Note != "3 files" {
		t.Fatalf("note lost: %+v", report.Phases[0])
	}
	summary := tm.Summary()
	if !strings.Contains(summary, "load") || !strings.Contains(summary, "// 3 files") || !strings.Contains(summary, "total") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestTimerEmptyReport(t *testing.T) {
	if r := NewTimer().Report(); r.TotalMS != 0 || r.Phases != nil {
		t.Fatalf("expected empty report, got %+v", r)
	}
}
