package utils

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Only the combining diacritical block gets stripped, so "crêpes" folds to
// "crepes" while Thai tone marks survive.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isCombiningDiacritic)), norm.NFC)

func isCombiningDiacritic(r rune) bool { return r >= 0x0300 && r <= 0x036f }

// FoldText lowercases, strips diacritics, turns punctuation and symbols
// into spaces and collapses runs of whitespace. "Crème  Brûlée " becomes
// "creme brulee"; "laid-back" and "laid back" fold to the same string.
// Query text and dictionary surfaces must both pass through here or
// punctuated forms of the same phrase would never match.
func FoldText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(accentStripper, s); err == nil {
		s = out
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// StringSimilarity returns a normalized edit-distance similarity in [0,1].
// 1.0 means equal, 0.0 means nothing in common at the given lengths.
func StringSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	if s1 == "" || s2 == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(s1, s2)
	maxLen := len([]rune(s1))
	if l := len([]rune(s2)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	sim := 1.0 - float64(dist)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}
