package transcript

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("  hello world  ", 1.5, 2)
	require.NoError(t, err)

	assert.Equal(t, "hello world", e.Text)
	assert.Equal(t, 1.5, e.Start)
	assert.Equal(t, 2.0, e.Duration)
	assert.Equal(t, 3.5, e.End())
	assert.Equal(t, 2, e.WordCount())
}

func TestNewEntry_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		start    float64
		duration float64
	}{
		{"empty text", "", 0, 1},
		{"whitespace text", " \t\n", 0, 1},
		{"negative start", "a", -1, 1},
		{"negative duration", "a", 0, -0.5},
		{"nan start", "a", math.NaN(), 1},
		{"inf duration", "a", 0, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntry(tt.text, tt.start, tt.duration)
			require.Error(t, err)
			assert.ErrorIs(t, err, sterrors.ErrValidation)
		})
	}
}

func TestMustEntry_Panics(t *testing.T) {
	assert.Panics(t, func() { MustEntry("", 0, 0) })
	assert.NotPanics(t, func() { MustEntry("ok", 0, 0) })
}

func TestSequenceHelpers(t *testing.T) {
	entries := []Entry{
		MustEntry("intro to go", 0, 2),
		MustEntry("slices", 2, 3),
		MustEntry("and maps", 5, 4),
	}

	assert.Equal(t, 9.0, TotalDuration(entries))
	assert.Equal(t, "intro to go slices and maps", JoinText(entries))
	assert.Equal(t, 6, WordCount(entries))

	assert.Equal(t, 0.0, TotalDuration(nil))
	assert.Equal(t, "", JoinText(nil))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:05.579", 5.579},
		{"01:02:03.500", 3723.5},
		{"1:02:03", 3723},
		{"02:30.25", 150.25},
		{"2:30", 150},
		{"00:00:01,500", 1.5},
		{"  00:01:00.000 ", 60},
		{"42.5", 42.5},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseTimestamp_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"00:xx:01.000",
		"aa:00:01.000",
		"00:00:zz",
		"1.5:00",
		"-1:00:00",
		"00:-01:00",
		"00:00:-5",
		"1:2:3:4",
		"NaN",
		"inf",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTimestamp(in)
			require.Error(t, err)
			assert.True(t, sterrors.IsMalformedTimestamp(err))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59.99, "0:59"},
		{75, "1:15"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3661, "1:01:01"},
		{36000, "10:00:00"},
		{-12, "0:00"},
		{math.NaN(), "0:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in), "FormatTimestamp(%v)", tt.in)
	}
}
