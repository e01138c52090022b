package memtext

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kb = 1 << 10
	mb = 1 << 20
	gb = 1 << 30
)

// ParseSize parses a number with an optional binary size suffix.
//
// Accepted forms: "4096", "0x1000", "16KB", "4MB", "1GB". Suffixes are
// case-insensitive binary multiples. Hex and suffix don't combine.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("memtext: empty size")
	}

	upper := strings.ToUpper(s)
	mult := uint64(1)
	switch {
	case strings.HasSuffix(upper, SuffixGB):
		mult, upper = gb, strings.TrimSuffix(upper, SuffixGB)
	case strings.HasSuffix(upper, SuffixMB):
		mult, upper = mb, strings.TrimSuffix(upper, SuffixMB)
	case strings.HasSuffix(upper, SuffixKB):
		mult, upper = kb, strings.TrimSuffix(upper, SuffixKB)
	}
	upper = strings.TrimSpace(upper)
	if upper == "" {
		return 0, fmt.Errorf("memtext: size %q has no digits", s)
	}

	var n uint64
	var err error
	if strings.HasPrefix(upper, strings.ToUpper(HexPrefix)) {
		if mult != 1 {
			return 0, fmt.Errorf("memtext: size %q mixes hex and a suffix", s)
		}
		n, err = strconv.ParseUint(upper[len(HexPrefix):], 16, 64)
	} else {
		n, err = strconv.ParseUint(upper, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("memtext: bad size %q: %w", s, err)
	}

	if mult != 1 && n > ^uint64(0)/mult {
		return 0, fmt.Errorf("memtext: size %q overflows", s)
	}
	return n * mult, nil
}

// FormatSize renders n the way a layout author would write it: an
// exact binary multiple gets its suffix, everything else stays decimal.
func FormatSize(n uint64) string {
	switch {
	case n >= gb && n%gb == 0:
		return fmt.Sprintf("%d%s", n/gb, SuffixGB)
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%d%s", n/mb, SuffixMB)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%d%s", n/kb, SuffixKB)
	default:
		return strconv.FormatUint(n, 10)
	}
}
