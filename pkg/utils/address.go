package utils

import (
	"regexp"
	"strings"
)

var (
	addressPunct = regexp.MustCompile(`[^\w\s]`)
	houseNumber  = regexp.MustCompile(`^\d+(/\d+)?`)
	postalCode   = regexp.MustCompile(`\b\d{5}\b`)
	zipTail      = regexp.MustCompile(`\s+\d{5}\b.*$`)
)

// addressAbbr folds the spellings that vary between providers onto one
// token. Thai street words land on the same abbreviations Google uses in
// formatted addresses.
var addressAbbr = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"road":      "rd",
	"thanon":    "rd",
	"alley":     "soi",
	"lane":      "soi",
	"building":  "bldg",
	"floor":     "fl",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// NormalizeAddress lowercases an address, strips punctuation and
// abbreviates street words, so two providers' spellings of the same place
// compare equal.
func NormalizeAddress(address string) string {
	if address == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(address))
	for i, w := range words {
		w = addressPunct.ReplaceAllString(w, "")
		if a, ok := addressAbbr[w]; ok {
			w = a
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// addressParts is the coarse decomposition CompareAddresses scores on.
type addressParts struct {
	number string
	street string
	zip    string
}

func splitAddress(address string) addressParts {
	n := NormalizeAddress(address)
	p := addressParts{
		number: houseNumber.FindString(n),
		zip:    postalCode.FindString(n),
	}
	street := strings.TrimSpace(strings.TrimPrefix(n, p.number))
	p.street = zipTail.ReplaceAllString(street, "")
	return p
}

// CompareAddresses scores two addresses in [0,1]. The street name carries
// most of the weight; house number and postal code count only when both
// sides have them. With no shared components it falls back to whole-string
// similarity.
func CompareAddresses(a1, a2 string) float64 {
	if a1 == "" || a2 == "" {
		return 0
	}
	n1, n2 := NormalizeAddress(a1), NormalizeAddress(a2)
	if n1 == n2 {
		return 1
	}

	p1, p2 := splitAddress(a1), splitAddress(a2)
	var score, weight float64
	if p1.number != "" && p2.number != "" {
		weight += 0.3
		if p1.number == p2.number {
			score += 0.3
		}
	}
	if p1.street != "" && p2.street != "" {
		weight += 0.6
		score += 0.6 * StringSimilarity(p1.street, p2.street)
	}
	if p1.zip != "" && p2.zip != "" {
		weight += 0.1
		if p1.zip == p2.zip {
			score += 0.1
		}
	}
	if weight == 0 {
		return StringSimilarity(n1, n2)
	}
	return score / weight
}
