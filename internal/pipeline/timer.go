package pipeline

import (
	"fmt"
	"time"
)

// ActivityTimer reports how long the calling process has been active.
type ActivityTimer interface {
	Elapsed() time.Duration
}

// ProcessTimer measures the activity of one process from its creation.
type ProcessTimer struct {
	start time.Time
	now   func() time.Time
}

// Activity is the summary returned by ProcessTimer.Finish.
type Activity struct {
	Start  time.Time     `json:"start_time"`
	End    time.Time     `json:"end_time"`
	Active time.Duration `json:"active_time"`
}

// NewProcessTimer starts a timer.
func NewProcessTimer() *ProcessTimer {
	return newProcessTimer(time.Now)
}

func newProcessTimer(now func() time.Time) *ProcessTimer {
	return &ProcessTimer{start: now(), now: now}
}

// Elapsed returns the time since the timer started.
func (t *ProcessTimer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Status formats Elapsed as H:MM:SS.
func (t *ProcessTimer) Status() string {
	return formatClock(t.Elapsed())
}

// Finish returns the start, end and active time of the process.
func (t *ProcessTimer) Finish() Activity {
	end := t.now()
	return Activity{Start: t.start, End: end, Active: end.Sub(t.start)}
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// status returns the H:MM:SS status of any timer.
func status(timer ActivityTimer) string {
	if s, ok := timer.(interface{ Status() string }); ok {
		return s.Status()
	}
	return formatClock(timer.Elapsed())
}
