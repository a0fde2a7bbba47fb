package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
)

// parseSize parses a size string: a trailing '%' for a percentage of free
// host memory, a single-letter SI suffix K/M/G/T (powers of 1024,
// case-insensitive), or a bare integer meaning bytes. freeMem is only
// consulted for the '%' form.
func parseSize(s string, freeMem freeMemoryFunc) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size: %w", errConfigInvalid)
	}

	if pct, ok := strings.CutSuffix(s, "%"); ok {
		frac, err := strconv.ParseFloat(pct, 64)
		if err != nil || frac <= 0 || frac > 100 {
			return 0, fmt.Errorf("invalid percentage %q: %w", s, errConfigInvalid)
		}

		free, err := freeMem()
		if err != nil {
			return 0, fmt.Errorf("measure free memory: %w", err)
		}

		return uint64(float64(free) * frac / 100), nil
	}

	// datasize.ByteSize parses "512MB"/"4GB"/"1024" style suffixes, not
	// fort's bare single-letter "512M"/"4G"; normalize by appending a "B"
	// to a trailing K/M/G/T before handing off.
	normalized := s

	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K', 'M', 'G', 'T', 'k', 'm', 'g', 't':
			normalized = s + "B"
		}
	}

	var bs datasize.ByteSize
	if err := bs.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, errConfigInvalid)
	}

	return bs.Bytes(), nil
}
