// Package logging launches background goroutines with pprof labels naming
// their launch site, so long-running work shows up attributed in profiles.
package logging

import (
	"context"
	"fmt"
	"runtime"
	"runtime/pprof"
	"strconv"
)

// GoAnnotate runs fn on a new goroutine labeled with the caller's location
// plus any extra labels.
func GoAnnotate(ctx context.Context, fn func(context.Context), labelMap ...map[string]any) {
	go pprof.Do(ctx, callerLabels(labelMap...), fn)
}

func callerLabels(labelMap ...map[string]any) pprof.LabelSet {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		panic("failed to get caller's stack frame")
	}

	labels := []string{
		"fn", runtime.FuncForPC(pc).Name(),
		"file", file,
		"line", strconv.Itoa(line),
	}

	for _, labelMap := range labelMap {
		for key, val := range labelMap {
			labels = append(labels, key, fmt.Sprintf("%v", val))
		}
	}

	return pprof.Labels(labels...)
}
