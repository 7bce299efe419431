package shopping

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var vulgarFractions = map[rune]float64{
	'¼': 0.25, '½': 0.5, '¾': 0.75,
	'⅓': 1.0 / 3, '⅔': 2.0 / 3,
	'⅛': 0.125, '⅜': 0.375, '⅝': 0.625, '⅞': 0.875,
}

var quantityPattern = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?\s?[¼½¾⅓⅔⅛⅜⅝⅞]|\d+(?:[.,]\d+)?|[¼½¾⅓⅔⅛⅜⅝⅞])`)

// ParseQuantity reads the leading quantity of an ingredient line. It
// returns the value and the length in bytes of the matched prefix, or
// ok=false when the line has no leading quantity.
func ParseQuantity(line string) (value float64, n int, ok bool) {
	m := quantityPattern.FindString(line)
	if m == "" {
		return 0, 0, false
	}

	var total float64
	for _, part := range strings.Fields(m) {
		v, ok := parsePart(part)
		if !ok {
			return 0, 0, false
		}
		total += v
	}
	return total, len(m), true
}

func parsePart(s string) (float64, bool) {
	if num, den, found := strings.Cut(s, "/"); found {
		a, err1 := strconv.Atoi(num)
		b, err2 := strconv.Atoi(den)
		if err1 != nil || err2 != nil || b == 0 {
			return 0, false
		}
		return float64(a) / float64(b), true
	}

	var total float64
	digits := s
	for r, v := range vulgarFractions {
		if strings.HasSuffix(s, string(r)) {
			total = v
			digits = strings.TrimSuffix(s, string(r))
			break
		}
	}
	if digits == "" {
		return total, true
	}
	f, err := strconv.ParseFloat(strings.Replace(digits, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return total + f, true
}

var fractionNames = []struct {
	value float64
	text  string
}{
	{0.25, "1/4"}, {1.0 / 3, "1/3"}, {0.5, "1/2"}, {2.0 / 3, "2/3"}, {0.75, "3/4"},
}

// FormatQuantity renders v as a whole number, a kitchen fraction ("1 1/2")
// or a decimal with at most two places.
func FormatQuantity(v float64) string {
	whole := math.Floor(v)
	frac := v - whole
	if frac < 0.01 {
		return strconv.Itoa(int(whole))
	}
	if frac > 0.99 {
		return strconv.Itoa(int(whole) + 1)
	}
	for _, f := range fractionNames {
		if math.Abs(frac-f.value) < 0.01 {
			if whole == 0 {
				return f.text
			}
			return fmt.Sprintf("%d %s", int(whole), f.text)
		}
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// ScaleLine multiplies the leading quantity of line by ratio. Lines without
// a quantity, and any line when ratio is 1, are returned unchanged.
func ScaleLine(line string, ratio float64) string {
	if ratio == 1 || ratio <= 0 {
		return line
	}
	v, n, ok := ParseQuantity(line)
	if !ok {
		return line
	}
	return FormatQuantity(v*ratio) + line[n:]
}
