package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_NowReturnsCurrentTime(t *testing.T) {
	var c Clock = Real{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestReal_AfterFuncFiresAfterDuration(t *testing.T) {
	var c Clock = Real{}
	fired := make(chan struct{})
	c.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestReal_AfterFuncTimerCanBeStopped(t *testing.T) {
	var c Clock = Real{}
	fired := make(chan struct{})
	timer := c.AfterFunc(50*time.Millisecond, func() { close(fired) })
	ok := timer.Stop()
	assert.True(t, ok)

	select {
	case <-fired:
		t.Fatal("timer fired despite being stopped")
	case <-time.After(150 * time.Millisecond):
	}
}
