package transcript

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
)

// ParseTimestamp converts a caption timestamp into elapsed seconds.
//
// Accepted shapes are H:MM:SS[.fff] and MM:SS[.fff]. Anything without exactly
// one or two colons is parsed as plain seconds. Hours and minutes must be
// integers. A comma is accepted as the decimal separator (00:00:01,500).
func ParseTimestamp(s string) (float64, error) {
	raw := s
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")

	parts := strings.Split(s, ":")
	var hours, minutes int
	var secPart string
	var err error

	switch len(parts) {
	case 3:
		if hours, err = parseWhole(parts[0]); err != nil {
			return 0, malformed(raw, err)
		}
		if minutes, err = parseWhole(parts[1]); err != nil {
			return 0, malformed(raw, err)
		}
		secPart = parts[2]
	case 2:
		if minutes, err = parseWhole(parts[0]); err != nil {
			return 0, malformed(raw, err)
		}
		secPart = parts[1]
	default:
		secPart = s
	}

	seconds, err := parseSeconds(secPart)
	if err != nil {
		return 0, malformed(raw, err)
	}

	return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
}

// FormatTimestamp renders seconds as H:MM:SS when there is at least one hour,
// M:SS otherwise. Fractions are truncated and negative input is clamped to 0.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func parseWhole(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative segment %d", v)
	}
	return v, nil
}

func parseSeconds(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid seconds %v", v)
	}
	return v, nil
}

func malformed(raw string, cause error) error {
	return fmt.Errorf("%w %q: %v", sterrors.ErrMalformedTimestamp, raw, cause)
}
