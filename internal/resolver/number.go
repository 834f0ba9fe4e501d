package resolver

import (
	"strconv"
	"strings"
)

// ParseNumber interprets token as a base-10 integer. Surrounding whitespace
// is ignored; an empty token, a fraction, exponent or hex notation and
// trailing text are not numbers.
func ParseNumber(token string) (int, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
