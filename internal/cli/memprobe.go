package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// freeMemoryFunc measures currently-available host memory, in bytes. It
// is passed in rather than called directly so tests can substitute a
// fixed value.
type freeMemoryFunc func() (uint64, error)

// readProcMeminfoFree reads /proc/meminfo's MemFree, Buffers, and Cached
// fields and returns their sum in bytes, an estimate of
// immediately-reclaimable memory.
func readProcMeminfoFree() (uint64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, fmt.Errorf("open /proc/meminfo: %w", err)
	}
	defer f.Close()

	var memFree, buffers, cached uint64

	wanted := map[string]*uint64{
		"MemFree:": &memFree,
		"Buffers:": &buffers,
		"Cached:":  &cached,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		dst, ok := wanted[fields[0]]
		if !ok {
			continue
		}

		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse /proc/meminfo field %q: %w", fields[0], err)
		}

		*dst = kb * 1024
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read /proc/meminfo: %w", err)
	}

	return memFree + buffers + cached, nil
}
