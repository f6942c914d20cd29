package main

import (
	"fmt"
	"io"
	"time"

	"quill/internal/buildpipeline"
)

func printStageTimings(out io.Writer, name string, timings buildpipeline.Timings) {
	if out == nil {
		return
	}
	for _, stage := range buildpipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s: %s %.1f ms\n", name, stage, toMillis(timings.Duration(stage))); err != nil {
			return
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
