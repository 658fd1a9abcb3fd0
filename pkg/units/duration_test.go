package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		total int
		want  string
	}{
		{0, "0m"},
		{45, "45m"},
		{60, "1h 0m"},
		{90, "1h 30m"},
		{1440, "1d 0h 0m"},
		{1500, "1d 1h 0m"},
		{2895, "2d 0h 15m"},
		{-1, "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMinutes(tt.total), "total=%d", tt.total)
	}
}

func TestParseMinutesRoundTrip(t *testing.T) {
	for _, total := range []int{0, 1, 45, 60, 90, 1440, 1500, 2895} {
		got, err := ParseMinutes(FormatMinutes(total))
		require.NoError(t, err)
		assert.Equal(t, total, got)
	}
}

func TestParseMinutesSentinel(t *testing.T) {
	got, err := ParseMinutes("-")
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestParseMinutesRejectsGarbage(t *testing.T) {
	_, err := ParseMinutes("5x")
	assert.Error(t, err)

	_, err = ParseMinutes("abcm")
	assert.Error(t, err)
}
