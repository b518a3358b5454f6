package heuristics

import (
	"regexp"
	"strings"
)

// Rule pairs a matcher with the value it yields. Tables of rules are
// evaluated top to bottom and the first hit wins.
type Rule struct {
	Match *regexp.Regexp
	Value string
}

// word wraps alternatives in Unicode-aware word boundaries; RE2's \b only
// understands ASCII, which would miss Cyrillic tokens.
func word(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(?:` + alternatives + `)(?:[^\p{L}\p{N}_]|$)`)
}

// First returns the value of the first rule matching text, or "".
func First(rules []Rule, text string) string {
	for _, r := range rules {
		if r.Match.MatchString(text) {
			return r.Value
		}
	}
	return ""
}

// AT/MT/EV stay case-sensitive so ordinary words like "at" don't count.
var TransmissionRules = []Rule{
	{Match: word(`(?i:auto|automatic|автомат|АКПП)|AT`), Value: "Automatic"},
	{Match: word(`(?i:manual|механика|МКПП)|MT`), Value: "Manual"},
}

var FuelRules = []Rule{
	{Match: word(`(?i:diesel|дизель)`), Value: "Diesel"},
	{Match: word(`(?i:petrol|gasoline|бензин|gas)`), Value: "Petrol"},
	{Match: word(`(?i:hybrid|гибрид)`), Value: "Hybrid"},
	{Match: word(`(?i:electric|электро\p{L}*)|EV`), Value: "Electric"},
}

var bodyTypes = []string{
	"Sedan", "Hatchback", "SUV", "Pickup", "Wagon", "Coupe", "Convertible",
	"Van", "MPV", "Crossover", "Scooter", "Sportbike", "Cruiser", "Adventure",
}

var knownBrands = []string{
	"Toyota", "Honda", "Nissan", "Mazda", "Mitsubishi", "Suzuki", "Isuzu",
	"Subaru", "Hyundai", "Kia", "Ford", "Chevrolet", "BMW", "Mercedes", "Audi",
	"Volkswagen", "Skoda", "Volvo", "Peugeot", "Renault", "Yamaha", "Kawasaki",
	"Ducati", "Harley", "Triumph", "Royal Enfield", "Benelli", "CFMoto", "KTM",
	"Vespa", "Piaggio", "SYM", "Kymco", "Husqvarna",
}

var (
	BodyRules  = keywordRules(bodyTypes)
	BrandRules = keywordRules(knownBrands)
)

func keywordRules(names []string) []Rule {
	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		rules = append(rules, Rule{Match: word(`(?i:` + namePattern(name) + `)`), Value: name})
	}
	return rules
}

func namePattern(name string) string {
	parts := strings.Fields(name)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}

// Label synonyms per field for explicit attribute lookups, compared
// case-insensitively after trimming.
var (
	YearLabels         = []string{"year", "model year", "год", "год выпуска", "ปี"}
	MileageLabels      = []string{"mileage", "odometer", "kilometers", "пробег", "เลขไมล์", "ระยะทาง"}
	TransmissionLabels = []string{"transmission", "коробка", "коробка передач", "трансмиссия", "เกียร์"}
	FuelLabels         = []string{"fuel type", "fuel", "топливо", "тип топлива", "เชื้อเพลิง"}
	BodyLabels         = []string{"body", "body type", "body style", "тип кузова", "кузов", "ประเภทตัวถัง"}
)
