package offers

import (
	"regexp"
	"strings"
)

const maxQueryLength = 100

var (
	// "500 g", "1,5 l", "1l", "250ml"
	sizePattern = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:kg|g|mg|gramm|ml|cl|l|liter|litre|oz|lb)\b`)

	// "6er-Pack", "6 x", "10 Stück", "Packung mit 6"
	packPattern = regexp.MustCompile(`(?i)\b\d+\s*(?:er)?[-\s]*(?:packung|pack|stück|stk\b|st\b|x\b)|\b(?:packung|pack)\s+(?:mit\s+)?\d+\b`)

	standaloneNumberPattern = regexp.MustCompile(`[,\-]\s*\d+(?:[.,]\d+)?\s*$|^\d+(?:[.,]\d+)?\s*[,\-]`)

	lonePunctuation     = regexp.MustCompile(`\s+[,\-;:]+\s+`)
	trailingPunctuation = regexp.MustCompile(`[,\-;:]+\s*$`)
	leadingPunctuation  = regexp.MustCompile(`^\s*[,\-;:]+`)
	multiSpacePattern   = regexp.MustCompile(`\s+`)
)

// queryNoiseWords never narrow an offer search down
var queryNoiseWords = map[string]bool{
	"neu":             true,
	"aktion":          true,
	"angebot":         true,
	"marke":           true,
	"sorte":           true,
	"versch":          true,
	"verschiedene":    true,
	"packung":         true,
	"großpackung":     true,
	"vorteilspackung": true,
	"familienpackung": true,
	"flasche":         true,
	"dose":            true,
	"glas":            true,
	"becher":          true,
	"beutel":          true,
	"tüte":            true,
}

// CleanQuery strips sizes, pack counts and marketing words from a product
// name so that it matches offer titles
func CleanQuery(name string) string {
	cleaned := sizePattern.ReplaceAllString(name, " ")
	cleaned = packPattern.ReplaceAllString(cleaned, " ")
	cleaned = standaloneNumberPattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)

	cleaned = lonePunctuation.ReplaceAllString(cleaned, " ")
	cleaned = trailingPunctuation.ReplaceAllString(cleaned, "")
	cleaned = leadingPunctuation.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(multiSpacePattern.ReplaceAllString(cleaned, " "))

	if runes := []rune(cleaned); len(runes) > maxQueryLength {
		cleaned = string(runes[:maxQueryLength])
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > maxQueryLength/2 {
			cleaned = cleaned[:lastSpace]
		}
	}
	return cleaned
}

func removeNoiseWords(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, word := range words {
		if !queryNoiseWords[strings.ToLower(strings.Trim(word, ",.!?;:-'\""))] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}
