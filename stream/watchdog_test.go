package stream

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestWatchdogFiresOncePerStall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := &Watchdog{Threshold: 90 * time.Second}
	w.Reset(clock.Now())

	clock.Advance(89 * time.Second)
	assert.False(t, w.Check(clock.Now()))

	clock.Advance(time.Second)
	assert.True(t, w.Check(clock.Now()), "fires at exactly the threshold")
	clock.Advance(time.Minute)
	assert.False(t, w.Check(clock.Now()), "only once per episode")

	w.Touch(clock.Now())
	clock.Advance(91 * time.Second)
	assert.True(t, w.Check(clock.Now()), "a new episode fires again")
}

func TestWatchdogLastDataOnlyMovesForward(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := &Watchdog{}
	now := clock.Now()
	w.Touch(now)
	w.Touch(now.Add(-time.Hour))
	assert.Equal(t, now, w.LastDataAt())
}

func TestWatchdogDefaultThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := &Watchdog{}
	assert.False(t, w.Check(clock.Now()), "never fires before the first reset")
	w.Reset(clock.Now())
	clock.Advance(DefaultInactivityTimeout - time.Millisecond)
	assert.False(t, w.Check(clock.Now()))
	clock.Advance(time.Millisecond)
	assert.True(t, w.Check(clock.Now()))
}
