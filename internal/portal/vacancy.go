package portal

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVacancy extracts the vacancy count from an option label of the
// form "<index> / <vacancy> / <size>". The vacancy is the second
// slash-delimited field.
func ParseVacancy(text string) (int, error) {
	fields := strings.Split(text, " / ")
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed vacancy text %q", text)
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, fmt.Errorf("malformed vacancy count in %q: %w", text, err)
	}
	return n, nil
}
