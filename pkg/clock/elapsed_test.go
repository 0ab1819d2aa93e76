package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsecSince(t *testing.T) {
	tests := []struct {
		name string
		s, e Time
		want int64
	}{
		{"same instant", Time{10, 0}, Time{10, 0}, 0},
		{"usec only", Time{10, 100}, Time{10, 250}, 150},
		{"sec and usec", Time{10, 0}, Time{12, 500}, 2000500},
		{"usec borrow", Time{10, 900000}, Time{11, 100000}, 200000},
		{"negative sec clamps", Time{20, 0}, Time{10, 0}, 0},
		{"negative usec clamps", Time{10, 500}, Time{10, 100}, 0},
		{"negative after borrow clamps", Time{10, 900000}, Time{10, 100000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsecSince(tt.s, tt.e))
		})
	}
}

func TestMsecSince(t *testing.T) {
	assert.Equal(t, int64(2000), MsecSince(Time{10, 0}, Time{12, 0}))
	assert.Equal(t, int64(0), MsecSince(Time{10, 0}, Time{10, 999}))
	assert.Equal(t, int64(0), MsecSince(Time{12, 0}, Time{10, 0}))
}

func TestSecondsSince(t *testing.T) {
	assert.InDelta(t, 2.5, SecondsSince(Time{10, 0}, Time{12, 500000}), 1e-9)
	assert.Zero(t, SecondsSince(Time{12, 0}, Time{10, 0}))
}

// Every pair of stamps, even deliberately reversed ones, must produce
// a non-negative elapsed value.
func TestElapsedNeverNegative(t *testing.T) {
	stamps := []Time{
		{0, 0}, {0, 999999}, {1, 0}, {5, 500000}, {100, 1}, {100, 999999},
	}
	for _, s := range stamps {
		for _, e := range stamps {
			assert.GreaterOrEqual(t, UsecSince(s, e), int64(0), "s=%+v e=%+v", s, e)
			assert.GreaterOrEqual(t, MsecSince(s, e), int64(0), "s=%+v e=%+v", s, e)
		}
	}
}

func TestSinceNow(t *testing.T) {
	c, err := New(SourceMonotonic)
	require.NoError(t, err)

	start := c.Now()
	assert.GreaterOrEqual(t, c.UsecSinceNow(start), int64(0))

	// A stamp from the future clamps to zero.
	future := c.Now()
	future.Sec += 3600
	assert.Zero(t, c.UsecSinceNow(future))
	assert.Zero(t, c.MsecSinceNow(future))
}
