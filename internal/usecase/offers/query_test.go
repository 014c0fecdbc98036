package offers

import (
	"strings"
	"testing"
)

func TestCleanQuery(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"removes attached size", "Milch 3,5% 1l", "Milch 3,5%"},
		{"removes grams", "Kaffee 500g", "Kaffee"},
		{"removes multipack and size", "Mineralwasser, 6 x 1,5 l", "Mineralwasser"},
		{"removes piece count", "Eier 10 Stück", "Eier"},
		{"removes er pack", "Joghurt 6er-Pack, neu", "Joghurt"},
		{"removes packaging words", "Vorteilspackung Kaffee 500g", "Kaffee"},
		{"removes packung mit", "Teebeutel Packung mit 20", "Teebeutel"},
		{"keeps unit-like word prefixes", "2 Limetten", "2 Limetten"},
		{"keeps plain names", "Haferflocken", "Haferflocken"},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanQuery(tc.input); got != tc.want {
				t.Errorf("CleanQuery(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCleanQuery_LimitsLength(t *testing.T) {
	long := strings.Repeat("Käsekuchen ", 20)
	got := CleanQuery(long)
	if n := len([]rune(got)); n > maxQueryLength {
		t.Errorf("len = %d, want <= %d", n, maxQueryLength)
	}
	if strings.HasSuffix(got, " ") || !strings.HasSuffix(got, "Käsekuchen") {
		t.Errorf("CleanQuery cut inside a word: %q", got)
	}
}

func TestSearchName_CleansGermanPart(t *testing.T) {
	if got := SearchName("Milk 1l / Milch 1l / Млеко"); got != "Milch" {
		t.Errorf("SearchName = %q, want Milch", got)
	}
}
