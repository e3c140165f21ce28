package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingDayUsesExchangeZone(t *testing.T) {
	c := MustNew("America/New_York")

	// 01:30 UTC is 20:30 the previous evening in New York.
	late := time.Date(2026, 3, 5, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-04", c.TradingDay(late))

	noon := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-04", c.TradingDay(noon))

	assert.True(t, c.SameTradingDay(late, noon))
	assert.False(t, c.SameTradingDay(late, noon.AddDate(0, 0, 1)))
}

func TestIsOpenSessionBounds(t *testing.T) {
	c, err := New("America/New_York", "09:30", "16:00")
	require.NoError(t, err)

	ny := c.Location()
	wednesday := func(h, m int) time.Time {
		return time.Date(2026, 3, 4, h, m, 0, 0, ny)
	}

	assert.False(t, c.IsOpen(wednesday(9, 29)))
	assert.True(t, c.IsOpen(wednesday(9, 30)), "open boundary is inclusive")
	assert.True(t, c.IsOpen(wednesday(12, 0)))
	assert.True(t, c.IsOpen(wednesday(15, 59)))
	assert.False(t, c.IsOpen(wednesday(16, 0)), "close boundary is exclusive")

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	assert.False(t, c.IsOpen(saturday))
	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, ny)
	assert.False(t, c.IsOpen(sunday))
}

func TestNewDefaultsAndErrors(t *testing.T) {
	c, err := New("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", c.Location().String())

	_, err = New("Not/AZone", "", "")
	require.Error(t, err)

	_, err = New("UTC", "nonsense", "")
	require.Error(t, err)
}
