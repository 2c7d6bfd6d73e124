package montage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Interval
	}{
		{
			name:     "float seconds",
			input:    "0-5,5-10,10-15",
			expected: []Interval{{0, 5}, {5, 10}, {10, 15}},
		},
		{
			name:     "fractional bounds with whitespace",
			input:    " 0.5 - 2.25 , 3-4.75 ",
			expected: []Interval{{0.5, 2.25}, {3, 4.75}},
		},
		{
			name:     "time codes",
			input:    "00:05-00:10,01:00-01:30.5",
			expected: []Interval{{5, 10}, {60, 90.5}},
		},
		{
			name:     "hour time codes mixed with seconds",
			input:    "1:00:00-1:00:10,12-20",
			expected: []Interval{{3600, 3610}, {12, 20}},
		},
		{
			name:     "single interval",
			input:    "3-7",
			expected: []Interval{{3, 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntervals(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			for _, iv := range got {
				assert.Greater(t, iv.End, iv.Start)
			}
		})
	}
}

func TestParseIntervalsMalformed(t *testing.T) {
	inputs := map[string]string{
		"empty":             "",
		"blank":             "   ",
		"not a number":      "0-5,abc",
		"missing end":       "0-",
		"too many bounds":   "0-5-10",
		"reversed":          "10-5",
		"zero length":       "5-5",
		"empty token":       "0-5,,5-10",
		"bad time code":     "00:61-01:10",
		"too many fields":   "1:2:3:4-5",
		"infinite":          "0-Inf",
		"minutes overflow":  "1:75:00-2:00:00",
		"trailing comma":    "0-5,",
		"non numeric field": "aa:10-00:20",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ParseIntervals(input)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrMalformedInterval)
		})
	}
}

func TestIntervalString(t *testing.T) {
	assert.Equal(t, "1.5-3", Interval{Start: 1.5, End: 3}.String())
	assert.Equal(t, 1.5, Interval{Start: 1.5, End: 3}.Duration())
}
