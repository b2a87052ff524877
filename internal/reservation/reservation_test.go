package reservation

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func mockClock(at time.Time) *clock.Mock {
	c := clock.NewMock()
	c.Set(at)
	return c
}

func TestReservation_Lifecycle(t *testing.T) {
	c := mockClock(epoch)
	r := New(c)

	assert.False(t, r.IsReserved())
	assert.True(t, r.TryReserve("exp", time.Second))
	assert.True(t, r.IsReserved())
	assert.True(t, r.ReservedFor("exp"))
	assert.False(t, r.ReservedFor("other"))
	assert.Equal(t, "exp", r.ExperimentID())

	assert.False(t, r.TryReserve("other", time.Second), "second reservation must be refused")

	assert.True(t, r.Cancel())
	assert.False(t, r.IsReserved())
	assert.False(t, r.Cancel(), "nothing left to cancel")
}

func TestReservation_ExpiresLazily(t *testing.T) {
	c := mockClock(epoch)
	r := New(c)
	r.Reserve("exp", 100*time.Millisecond)

	c.Add(99 * time.Millisecond)
	assert.True(t, r.IsReserved())

	// expiresAt > now is required, so the boundary itself is expired
	c.Add(time.Millisecond)
	assert.False(t, r.IsReserved())
	assert.Equal(t, "", r.ExperimentID())
	assert.True(t, r.TryReserve("other", time.Second))
}

func TestReservation_Admits(t *testing.T) {
	c := mockClock(epoch)
	r := New(c)

	assert.True(t, r.Admits("anything"), "unreserved admits all")

	r.Reserve("exp", time.Second)
	assert.True(t, r.Admits("exp"))
	assert.False(t, r.Admits("other"))

	c.Add(2 * time.Second)
	assert.True(t, r.Admits("other"), "expired reservation admits all")
}

func TestReservation_CancelExpired(t *testing.T) {
	c := mockClock(epoch)
	r := New(c)
	r.Reserve("exp", time.Second)
	c.Add(time.Second)
	assert.False(t, r.Cancel())
}

func TestReservation_Concurrent(t *testing.T) {
	r := New(clock.New())
	var wg sync.WaitGroup
	wins := make(chan bool, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.TryReserve("exp", time.Minute)
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
