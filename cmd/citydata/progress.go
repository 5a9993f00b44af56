package main

import (
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Sternrassler/city-data-fetch/pkg/pipeline"
	"github.com/Sternrassler/city-data-fetch/pkg/window"
)

// progress renders one tick per handled window.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(d *deps, total int, description string) *progress {
	if !d.opts.progress || total < 2 {
		return &progress{}
	}
	return &progress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(d.opts.stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)}
}

// Hook is a pipeline.ProgressFunc.
func (p *progress) Hook(w window.Window, outcome pipeline.Outcome) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(w.String() + " " + string(outcome))
	p.bar.Add(1)
}

// Finish completes the bar.
func (p *progress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
