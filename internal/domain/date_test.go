package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	got, err := ParseDate("due_date", "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseDate("due_date", "2026-10-20T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseDate("due_date", "20/10/2026")
	assert.ErrorIs(t, err, ErrInvalidInput)

	var input *InputError
	require.ErrorAs(t, err, &input)
	assert.Equal(t, `due_date "20/10/2026" is not a date (YYYY-MM-DD)`, input.Reason)
}

func TestDaysBetweenIgnoresClockTime(t *testing.T) {
	a := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 3, 7, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 6, DaysBetween(a, b))
}
