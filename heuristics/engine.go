package heuristics

import (
	"regexp"
	"strconv"
	"strings"

	"mkt_tracker/models"
	"mkt_tracker/parse"
)

const (
	minYear = 1980
	maxYear = 2035
)

var yearRegex = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(19[89]\d|20[0-3]\d)(?:[^\p{L}\p{N}_]|$)`)

// Vehicle holds the structured fields inferred for one listing.
type Vehicle struct {
	Year         *int
	MileageKm    *int
	Fuel         string
	Transmission string
	BodyType     string
	Brand        string
	Model        string
}

// Infer derives vehicle fields, preferring an explicit attribute over free
// text for every field except brand and model, which come from the title.
func Infer(title, description string, attrs models.Attributes) Vehicle {
	pool := textPool(title, description, attrs)

	var v Vehicle

	if val, ok := lookup(attrs, YearLabels); ok {
		v.Year = pickYear(val)
	}
	if v.Year == nil {
		v.Year = pickYear(pool)
	}

	if val, ok := lookup(attrs, MileageLabels); ok {
		v.MileageKm = parse.ExtractKm(val)
	}
	if v.MileageKm == nil {
		v.MileageKm = parse.ExtractKm(pool)
	}

	v.Transmission = fromAttributeOrText(attrs, TransmissionLabels, TransmissionRules, pool)
	v.Fuel = fromAttributeOrText(attrs, FuelLabels, FuelRules, pool)
	v.BodyType = fromAttributeOrText(attrs, BodyLabels, BodyRules, pool)

	v.Brand = First(BrandRules, title)
	if v.Brand != "" {
		v.Model = modelAfter(v.Brand, title)
	}
	return v
}

// Apply runs Infer over the listing and writes back whatever was found.
// Fields with no match keep their current value.
func Apply(l *models.Listing) Vehicle {
	v := Infer(l.Title, l.Description, l.Attributes)
	if v.Year != nil {
		l.Year = v.Year
	}
	if v.MileageKm != nil {
		l.MileageKm = v.MileageKm
	}
	setIfFound(&l.Fuel, v.Fuel)
	setIfFound(&l.Transmission, v.Transmission)
	setIfFound(&l.BodyType, v.BodyType)
	setIfFound(&l.Brand, v.Brand)
	setIfFound(&l.Model, v.Model)
	return v
}

func setIfFound(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func textPool(title, description string, attrs models.Attributes) string {
	parts := []string{title, description}
	for _, a := range attrs {
		parts = append(parts, a.Label+" "+a.Value)
	}
	return strings.Join(parts, " ")
}

func lookup(attrs models.Attributes, labels []string) (string, bool) {
	for _, a := range attrs {
		label := strings.TrimSpace(a.Label)
		for _, want := range labels {
			if strings.EqualFold(label, want) {
				return a.Value, true
			}
		}
	}
	return "", false
}

// fromAttributeOrText normalizes an explicit attribute value through the
// rule table and keeps the cleaned raw value when no rule recognises it.
func fromAttributeOrText(attrs models.Attributes, labels []string, rules []Rule, pool string) string {
	if val, ok := lookup(attrs, labels); ok {
		val = parse.Clean(val)
		if hit := First(rules, val); hit != "" {
			return hit
		}
		if val != "" {
			return val
		}
	}
	return First(rules, pool)
}

func pickYear(s string) *int {
	for _, m := range yearRegex.FindAllStringSubmatch(s, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if y >= minYear && y <= maxYear {
			return &y
		}
	}
	return nil
}

func modelAfter(brand, title string) string {
	re := regexp.MustCompile(`(?i:` + namePattern(brand) + `)\s+([A-Za-z0-9\-]+)`)
	if m := re.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return ""
}
