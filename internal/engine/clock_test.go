package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/taskdispatch/internal/testutil"
)

func TestSystemClock_Now(t *testing.T) {
	before := time.Now()
	got := SystemClock{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestManualClock_IsClock(t *testing.T) {
	var c Clock = testutil.NewManualClock(t0)
	assert.Equal(t, t0, c.Now())
}
