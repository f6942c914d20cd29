package buildpipeline

import "time"

// Stage describes a phase of a workspace build.
type Stage string

const (
	// StageLoad reads the manifest and the project files.
	StageLoad Stage = "load"
	// StageValidate runs the program checks.
	StageValidate Stage = "validate"
	// StagePackage copies files to staging and zips them.
	StagePackage Stage = "package"
	// StageDeploy delivers the package.
	StageDeploy Stage = "deploy"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageLoad, StageValidate, StagePackage, StageDeploy}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the build is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the stage is running.
	StatusWorking Status = "working"
	// StatusDone indicates the stage finished.
	StatusDone Status = "done"
	// StatusError indicates the stage failed.
	StatusError Status = "error"
	// StatusCanceled indicates a newer build superseded this one.
	StatusCanceled Status = "canceled"
)

// Event reports progress for a workspace (identified by its root directory).
type Event struct {
	Workspace string
	Stage     Stage
	Status    Status
	Err       error
	Elapsed   time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages, or across
// every recorded stage when none are given.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	if len(stages) == 0 {
		stages = Stages
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
