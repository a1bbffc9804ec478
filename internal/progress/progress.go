// Package progress draws stderr progress for document loading and pipeline
// stages.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for one unit of work.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
	start time.Time
}

// NewSpinner creates a spinner for operations with unknown total count.
func NewSpinner(label string) *Tracker {
	return newSpinner(os.Stderr, label)
}

func newSpinner(w io.Writer, label string) *Tracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, out: w, start: time.Now()}
}

// NewTracker creates a progress bar counting documents as they load.
func NewTracker(label string, total int) *Tracker {
	return newTracker(os.Stderr, label, total)
}

func newTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label, out: w, start: time.Now()}
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.bar.Add(1)
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	t.bar.Finish()
	t.bar.Clear()
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	t.bar.Finish()
	t.bar.Clear()
	fmt.Fprintf(t.out, "  %s failed after %s: %v\n", t.label, time.Since(t.start).Round(time.Millisecond), err)
}

// Finish ends the tracker according to err.
func (t *Tracker) Finish(err error) {
	if err != nil {
		t.FinishError(err)
		return
	}
	t.FinishSuccess()
}

// Stages returns a pipeline stage hook that shows one spinner per stage on w.
// It has the shape of linker.StageHook.
func Stages(w io.Writer) func(name string) func(error) {
	if w == nil {
		w = os.Stderr
	}
	return func(name string) func(error) {
		return newSpinner(w, name).Finish
	}
}
