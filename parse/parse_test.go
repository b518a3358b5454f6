package parse

import (
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		value    float64
		currency string
		noValue  bool
	}{
		{name: "baht symbol", input: "฿150,000", value: 150000, currency: "THB"},
		{name: "dollar symbol", input: "$15,000", value: 15000, currency: "USD"},
		{name: "euro with space", input: "€ 9,999.50", value: 9999.5, currency: "EUR"},
		{name: "pound", input: "£700", value: 700, currency: "GBP"},
		{name: "code word", input: "450000 thb", value: 450000, currency: "THB"},
		{name: "nbsp separators", input: "฿1\u00a0200", value: 1200, currency: "THB"},
		{name: "number only", input: "Price 1200", value: 1200, currency: ""},
		{name: "empty", input: "", noValue: true},
		{name: "no digits", input: "Free", noValue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, cur := ParsePrice(tt.input)
			if tt.noValue {
				if v != nil || cur != "" {
					t.Fatalf("expected no price, got %v %q", v, cur)
				}
				return
			}
			if v == nil {
				t.Fatalf("expected value %v, got nil", tt.value)
			}
			if *v != tt.value {
				t.Fatalf("expected value %v, got %v", tt.value, *v)
			}
			if cur != tt.currency {
				t.Fatalf("expected currency %q, got %q", tt.currency, cur)
			}
		})
	}
}

func TestClean(t *testing.T) {
	if got := Clean("  Hello   World  \n"); got != "Hello World" {
		t.Fatalf("expected %q, got %q", "Hello World", got)
	}
	if got := Clean(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := Clean("a \tb"); got != "a b" {
		t.Fatalf("expected %q, got %q", "a b", got)
	}
}

func TestExtractKm(t *testing.T) {
	tests := []struct {
		input string
		want  int
		none  bool
	}{
		{input: "Car with 50,000 km", want: 50000},
		{input: "пробег 120 000 км", want: 120000},
		{input: "Driven 35000km only", want: 35000},
		{input: "odometer 87654", want: 87654},
		{input: "No mileage info", none: true},
		{input: "", none: true},
	}

	for _, tt := range tests {
		got := ExtractKm(tt.input)
		if tt.none {
			if got != nil {
				t.Fatalf("ExtractKm(%q): expected nil, got %d", tt.input, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Fatalf("ExtractKm(%q): expected %d, got %v", tt.input, tt.want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Тойота Камри", 6); got != "Тойота" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("expected unchanged, got %q", got)
	}
}
