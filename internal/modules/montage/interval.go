package montage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMalformedInterval = errors.New("malformed interval")
	ErrMediaOpen         = errors.New("cannot open media")
	ErrOutOfRange        = errors.New("interval exceeds source duration")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSourceClosed      = errors.New("source already released")
)

// Interval is a [Start, End) range of the source in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("%s-%s", formatSeconds(i.Start), formatSeconds(i.End))
}

// ParseIntervals parses a comma-separated list of "start-end" ranges.
// Bounds are either seconds ("12.5") or time codes ("01:05", "1:02:03.5").
func ParseIntervals(text string) ([]Interval, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty interval list", ErrMalformedInterval)
	}

	tokens := strings.Split(text, ",")
	intervals := make([]Interval, 0, len(tokens))
	for n, token := range tokens {
		iv, err := parseInterval(strings.TrimSpace(token))
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q: %v", ErrMalformedInterval, n+1, strings.TrimSpace(token), err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

func parseInterval(token string) (Interval, error) {
	bounds := strings.Split(token, "-")
	if len(bounds) != 2 {
		return Interval{}, fmt.Errorf("expected start-end, got %d bound(s)", len(bounds))
	}

	start, err := parseBound(bounds[0])
	if err != nil {
		return Interval{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseBound(bounds[1])
	if err != nil {
		return Interval{}, fmt.Errorf("end: %w", err)
	}
	if end <= start {
		return Interval{}, fmt.Errorf("end %s is not after start %s", formatSeconds(end), formatSeconds(start))
	}
	return Interval{Start: start, End: end}, nil
}

func parseBound(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing value")
	}
	if strings.Contains(s, ":") {
		return parseTimecode(s)
	}
	return parseSeconds(s)
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value: %q", s)
	}
	return v, nil
}

// parseTimecode accepts mm:ss[.fff] and hh:mm:ss[.fff].
func parseTimecode(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad time code: %q", s)
	}

	secs, err := parseSeconds(parts[len(parts)-1])
	if err != nil {
		return 0, err
	}
	if secs >= 60 {
		return 0, fmt.Errorf("seconds out of range in %q", s)
	}

	total := secs
	mult := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad time code field %q in %q", parts[i], s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("minutes out of range in %q", s)
		}
		total += float64(v) * mult
		mult *= 60
	}
	return total, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
