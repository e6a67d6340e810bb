package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

// addressRegex matches `name` or `name[1]`.
var addressRegex = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)(?:\[(\d+)\])?$`)

// Parse creates an Address by parsing its canonical string representation.
func Parse(rawID string) (Address, error) {
	if rawID == "" {
		return Address{}, fmt.Errorf("identifier cannot be empty")
	}

	matches := addressRegex.FindStringSubmatch(rawID)
	if matches == nil {
		return Address{}, fmt.Errorf("invalid instance identifier format: %q", rawID)
	}

	addr := New(matches[1])
	if matches[2] != "" {
		index, err := strconv.Atoi(matches[2])
		if err != nil {
			return Address{}, fmt.Errorf("invalid instance index in %q: %w", rawID, err)
		}
		addr.Index = index
	}
	return addr, nil
}

// ValidName reports whether s can be used as a job name.
func ValidName(s string) bool {
	m := addressRegex.FindStringSubmatch(s)
	return m != nil && m[2] == ""
}
