package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer("build_segments")
	assert.NotNil(t, timer)
	assert.Equal(t, "build_segments", timer.name)
	assert.True(t, timer.enabled)
}

func TestTimerDisabled(t *testing.T) {
	// Mirrors Dag.EnableBuildTiming(false): Start/Stop become no-ops so
	// a plain build pays no timer overhead.
	timer := NewTimer("build_segments", WithEnabled(false))

	pt := timer.Start("level0")
	assert.NotNil(t, pt)

	duration := pt.Stop()
	assert.Equal(t, time.Duration(0), duration)
	assert.Equal(t, "", timer.Summary())
}

func TestTimerPhases(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	pt1 := timer.Start("level0")
	mockClock.Advance(100 * time.Millisecond)
	pt1.Stop()

	pt2 := timer.Start("level1")
	mockClock.Advance(200 * time.Millisecond)
	pt2.Stop()

	assert.Equal(t, 100*time.Millisecond, timer.GetDuration("level0"))
	assert.Equal(t, 200*time.Millisecond, timer.GetDuration("level1"))
}

func TestTimerDeferPattern(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	func() {
		defer timer.Start("level0").Stop()
		mockClock.Advance(150 * time.Millisecond)
	}()

	assert.Equal(t, 150*time.Millisecond, timer.GetDuration("level0"))
}

func TestTimerSummary(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	timer.Start("level0")
	mockClock.Advance(100 * time.Millisecond)
	timer.StopPhase("level0")

	timer.Start("level1")
	mockClock.Advance(200 * time.Millisecond)
	timer.StopPhase("level1")

	summary := timer.Summary()
	assert.Contains(t, summary, "build_segments timing")
	assert.Contains(t, summary, "level0")
	assert.Contains(t, summary, "level1")
	assert.Contains(t, summary, "total:")
}

func TestTimerGetPhasesPreservesStartOrder(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	timer.Start("level0")
	mockClock.Advance(10 * time.Millisecond)
	timer.StopPhase("level0")

	timer.Start("level1")
	mockClock.Advance(20 * time.Millisecond)
	timer.StopPhase("level1")

	phases := timer.GetPhases()
	assert.Len(t, phases, 2)
	assert.Equal(t, "level0", phases[0].Name)
	assert.Equal(t, "level1", phases[1].Name)
}

func TestTimerReset(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	timer.Start("level0")
	mockClock.Advance(100 * time.Millisecond)
	timer.StopPhase("level0")

	timer.Reset()

	phases := timer.GetPhases()
	assert.Len(t, phases, 0)
}

func TestTimerConcurrency(t *testing.T) {
	timer := NewTimer("concurrent")
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(id int) {
			phaseName := strings.Repeat("x", id+1)
			pt := timer.Start(phaseName)
			time.Sleep(time.Millisecond)
			pt.Stop()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	phases := timer.GetPhases()
	assert.Len(t, phases, 10)
}

func TestTimerStopIdempotent(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	pt := timer.Start("level0")
	mockClock.Advance(100 * time.Millisecond)
	d1 := pt.Stop()

	mockClock.Advance(100 * time.Millisecond)
	d2 := pt.Stop()

	assert.Equal(t, d1, d2)
	assert.Equal(t, 100*time.Millisecond, d1)
}

func TestTimerTotalDuration(t *testing.T) {
	mockClock := NewMockClock(time.Now())
	timer := NewTimer("build_segments", WithClock(mockClock))

	mockClock.Advance(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, timer.TotalDuration())
}
