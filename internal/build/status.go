package build

import "sync"

// Status is the externally visible state of a project's build.
type Status string

const (
	StatusBuilding      Status = "building"
	StatusSuccess       Status = "success"
	StatusCriticalError Status = "critical-error"
)

// Outcome is how a single run ended.
type Outcome uint8

const (
	// OutcomeValidated means every enabled phase ran.
	OutcomeValidated Outcome = iota + 1
	// OutcomeCanceled means a newer run superseded this one.
	OutcomeCanceled
	// OutcomeBroken means a phase failed unexpectedly.
	OutcomeBroken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValidated:
		return "validated"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Notifier receives build signals meant for the user rather than the
// diagnostic list. Implementations must not block.
type Notifier interface {
	BuildStatus(root string, status Status)
	CriticalFailure(root string, message string)
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) BuildStatus(string, Status)     {}
func (NopNotifier) CriticalFailure(string, string) {}

// Notification is one recorded call on a RecordingNotifier.
type Notification struct {
	Root     string
	Status   Status
	Critical string
}

// RecordingNotifier keeps every notification in memory; used by the CLI to
// report failures after a run and by tests.
type RecordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *RecordingNotifier) BuildStatus(root string, status Status) {
	r.mu.Lock()
	r.items = append(r.items, Notification{Root: root, Status: status})
	r.mu.Unlock()
}

func (r *RecordingNotifier) CriticalFailure(root, message string) {
	r.mu.Lock()
	r.items = append(r.items, Notification{Root: root, Critical: message})
	r.mu.Unlock()
}

// Items returns a copy of the recorded notifications.
func (r *RecordingNotifier) Items() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Criticals returns only the critical failure messages.
func (r *RecordingNotifier) Criticals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		if n.Critical != "" {
			out = append(out, n.Critical)
		}
	}
	return out
}
