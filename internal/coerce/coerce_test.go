package coerce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateSupportedFormats(t *testing.T) {
	want := time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"14/03/2024", "14-03-2024", "2024-03-14", "2024/03/14", "03/14/2024"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDateDayFirstWins(t *testing.T) {
	got, ok := ParseDate("03/04/2024")
	require.True(t, ok)
	assert.Equal(t, time.April, got.Month())
	assert.Equal(t, 3, got.Day())
}

func TestParseDateSingleDigitsAndTime(t *testing.T) {
	got, ok := ParseDate("5/1/2025 10:30:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC), got)

	got, ok = ParseDate("2025-01-05T00:00:00")
	require.True(t, ok)
	assert.Equal(t, 5, got.Day())
}

func TestParseDateInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "mañana", "32/13/2024", "2024-13-45"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
		assert.False(t, NullDate(in).Valid, in)
	}
}

func TestParseNumber(t *testing.T) {
	f, ok := ParseNumber("1.234.567,89")
	require.True(t, ok)
	assert.InDelta(t, 1234567.89, f, 1e-9)

	f, ok = ParseNumber("$ 45.000")
	require.True(t, ok)
	assert.Equal(t, 45000.0, f)

	f, ok = ParseNumber("-1.500,5")
	require.True(t, ok)
	assert.Equal(t, -1500.5, f)

	for _, in := range []string{"abc", "", "1,2,3"} {
		_, ok := ParseNumber(in)
		assert.False(t, ok, in)
		assert.False(t, NullNumber(in).Valid, in)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(4), DaysBetween(a, b))
	assert.Equal(t, int64(-4), DaysBetween(b, a))
	assert.Equal(t, int64(0), DaysBetween(a, a))
}
