package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone(t *testing.T) {
	loc, err := ParseTimezone("Asia/Shanghai")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())

	loc, err = ParseTimezone("")
	require.NoError(t, err)
	assert.Equal(t, UTC, loc)

	loc, err = ParseTimezone("Not/AZone")
	require.Error(t, err)
	assert.Equal(t, UTC, loc, "invalid input falls back to UTC")
}

func TestStartOfDay(t *testing.T) {
	at := time.Date(2024, time.March, 13, 18, 45, 12, 999, time.UTC)

	day := StartOfDay(at, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), day)

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	// 18:45 UTC is already March 14 in Shanghai.
	assert.Equal(t, 14, StartOfDay(at, shanghai).Day())

	assert.Equal(t, day, StartOfDay(at, nil), "nil location defaults to UTC")
}

func TestStartOfMonth(t *testing.T) {
	at := time.Date(2024, time.March, 13, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(at, time.UTC))
}

func TestSameDay(t *testing.T) {
	morning := time.Date(2024, time.March, 13, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2024, time.March, 13, 23, 0, 0, 0, time.UTC)
	nextDay := time.Date(2024, time.March, 14, 0, 0, 1, 0, time.UTC)

	assert.True(t, SameDay(morning, evening, time.UTC))
	assert.False(t, SameDay(evening, nextDay, time.UTC))

	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	assert.False(t, SameDay(morning, evening, shanghai), "23:00 UTC is the next day in Shanghai")
}
