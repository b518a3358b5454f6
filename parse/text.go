package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	kmRegex       = regexp.MustCompile(`(?i)(\d[\d\s]{1,12})\s?(?:км|km)(?:[^\p{L}\p{N}_]|$)`)
	bareNumberRe  = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(\d{4,7})(?:[^\p{L}\p{N}_]|$)`)
	digitsOnlyRex = regexp.MustCompile(`\D`)
)

// Clean collapses every run of whitespace (NBSP included) into one space and
// trims the result.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ExtractKm returns the first number written next to a km/км unit, falling
// back to the first standalone 4-7 digit number. Nil when neither is present.
func ExtractKm(s string) *int {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", " ")
	if m := kmRegex.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Atoi(digitsOnlyRex.ReplaceAllString(m[1], "")); err == nil {
			return &v
		}
	}
	if m := bareNumberRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return &v
		}
	}
	return nil
}
