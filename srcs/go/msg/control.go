package msg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errBadControl = errors.New("malformed control frame")

// FormatSeedCount encodes the control frame of a random-subset sync.
func FormatSeedCount(seed uint64, count int) string {
	return fmt.Sprintf("%d-%d", seed, count)
}

func ParseSeedCount(s string) (uint64, int, error) {
	a, b, err := splitControl(s)
	if err != nil {
		return 0, 0, err
	}
	seed, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(errBadControl, "%q: %v", s, err)
	}
	count, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, errors.Wrapf(errBadControl, "%q: %v", s, err)
	}
	return seed, count, nil
}

// FormatAlphaCount encodes the control frame of an elastic averaging sync.
func FormatAlphaCount(alpha float32, count int) string {
	return strconv.FormatFloat(float64(alpha), 'g', -1, 32) + "-" + strconv.Itoa(count)
}

func ParseAlphaCount(s string) (float32, int, error) {
	a, b, err := splitControl(s)
	if err != nil {
		return 0, 0, err
	}
	alpha, err := strconv.ParseFloat(a, 32)
	if err != nil {
		return 0, 0, errors.Wrapf(errBadControl, "%q: %v", s, err)
	}
	count, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, errors.Wrapf(errBadControl, "%q: %v", s, err)
	}
	return float32(alpha), count, nil
}

func splitControl(s string) (string, string, error) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return "", "", errors.Wrapf(errBadControl, "%q", s)
	}
	return s[:i], s[i+1:], nil
}
