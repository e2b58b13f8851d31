package runtime

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// Compare applies a condicion operator. Numeric operators return false when either side
// is not a number, and regex returns false for an invalid pattern.
func Compare(op, left, right string) bool {
	switch op {
	case domain.OpIgual:
		return strings.EqualFold(strings.TrimSpace(left), strings.TrimSpace(right))
	case domain.OpNoIgual:
		return !strings.EqualFold(strings.TrimSpace(left), strings.TrimSpace(right))
	case domain.OpContiene:
		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case domain.OpNoVacio:
		return strings.TrimSpace(left) != ""
	case domain.OpVacio:
		return strings.TrimSpace(left) == ""
	case domain.OpMayorQue, domain.OpMenorQue:
		l, lok := parseNumber(left)
		r, rok := parseNumber(right)
		if !lok || !rok {
			return false
		}
		if op == domain.OpMayorQue {
			return l > r
		}
		return l < r
	case domain.OpRegex:
		re, err := regexp.Compile(right)
		if err != nil {
			return false
		}
		return re.MatchString(left)
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
