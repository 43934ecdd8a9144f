package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/the-hours-must-flow/internal/engine"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
	"github.com/schollz/progressbar/v3"
)

// RunProgress draws a progress bar for a pipeline run. The bar is created
// on the first update, once the meeting count is known.
type RunProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewRunProgress creates a progress display writing to w.
func NewRunProgress(w io.Writer) *RunProgress {
	return &RunProgress{writer: w}
}

func newBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Matching meetings...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// Update is an engine progress callback.
func (p *RunProgress) Update(ev engine.Progress) {
	if p.bar == nil {
		p.bar = newBar(p.writer, ev.Total)
	}
	desc := "[cyan][bold]Matching meetings...[reset]"
	switch ev.Action {
	case router.ActionAutoPost:
		desc = "[green][bold]Posted " + ev.MeetingID + "[reset]"
	case router.ActionReview:
		desc = "[yellow][bold]Queued " + ev.MeetingID + "[reset]"
	}
	p.bar.Describe(desc)
	if err := p.bar.Set(ev.Done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar.
func (p *RunProgress) Finish() {
	if p.bar == nil {
		return
	}
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
