package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestNewTracker(t *testing.T) {
	tests := []struct {
		name  string
		label string
		total int
	}{
		{name: "standard tracker", label: "Loading documents", total: 100},
		{name: "zero total", label: "Empty input", total: 0},
		{name: "single document", label: "One document", total: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTracker(&bytes.Buffer{}, tt.label, tt.total)

			if tracker.bar == nil {
				t.Error("tracker.bar should not be nil")
			}
			if tracker.label != tt.label {
				t.Errorf("tracker.label = %q, want %q", tracker.label, tt.label)
			}
		})
	}
}

func TestNewSpinner(t *testing.T) {
	tracker := NewSpinner("mark")

	if tracker.bar == nil {
		t.Error("tracker.bar should not be nil")
	}
	if tracker.label != "mark" {
		t.Errorf("tracker.label = %q, want mark", tracker.label)
	}
	tracker.FinishSuccess()
}

func TestTrackerTickConcurrent(t *testing.T) {
	tracker := newTracker(&bytes.Buffer{}, "Concurrent load", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Tick()
			}
		}()
	}

	wg.Wait()
	tracker.FinishSuccess()
}

func TestTrackerFinishError(t *testing.T) {
	var buf bytes.Buffer
	tracker := newSpinner(&buf, "sweep")

	tracker.Finish(errors.New("boom"))

	if !strings.Contains(buf.String(), "sweep failed after") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("output = %q, want the stage and the error", buf.String())
	}
}

func TestStagesHook(t *testing.T) {
	var buf bytes.Buffer
	hook := Stages(&buf)

	done := hook("mark")
	done(nil)
	if strings.Contains(buf.String(), "failed") {
		t.Errorf("successful stage printed %q", buf.String())
	}

	hook("rewrite")(errors.New("unsupported"))
	if !strings.Contains(buf.String(), "rewrite failed") {
		t.Errorf("output = %q, want a failure line", buf.String())
	}
}
